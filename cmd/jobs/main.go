// The jobs binary runs one batch job and exits; cron owns the schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	protoactor "github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/crashkart/pkg/config"
	"github.com/example/crashkart/pkg/jobs"
	"github.com/example/crashkart/pkg/notify"
	"github.com/example/crashkart/pkg/repository"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	jobName := flag.String("job", "", "job to run: abandoned-carts, price-drop-alerts, restock-alerts, or all")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	if *jobName == "" {
		logger.Fatal("No job given, use -job")
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()

	system := protoactor.NewActorSystem()
	dispatcher, err := notify.NewActorDispatcher(system, &notify.LogSender{Logger: logger}, logger)
	if err != nil {
		logger.Fatal("Failed to spawn mailer actor", zap.Error(err))
	}

	runner := jobs.NewRunner(
		repository.NewCartRepository(db),
		repository.NewCatalogRepository(db),
		redisRepo,
		dispatcher,
		cfg.Jobs,
		logger,
		nil,
	)

	names := []string{*jobName}
	if *jobName == "all" {
		names = []string{"abandoned-carts", "price-drop-alerts", "restock-alerts"}
	}

	ctx := context.Background()
	failed := false
	for _, name := range names {
		report, err := runner.Run(ctx, name)
		if err != nil {
			logger.Error("Job failed", zap.String("job", name), zap.Error(err))
			failed = true
			continue
		}
		logger.Info("Job done",
			zap.String("job", report.Job),
			zap.Int("processed", report.Processed),
			zap.Int("sent", report.Sent),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	}

	if failed {
		logger.Fatal("Batch run finished with failures", zap.String("jobs", strings.Join(names, ",")))
	}
}
