package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	protoactor "github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/example/crashkart/gateway"
	"github.com/example/crashkart/pkg/checkout"
	"github.com/example/crashkart/pkg/config"
	"github.com/example/crashkart/pkg/discovery"
	"github.com/example/crashkart/pkg/events"
	"github.com/example/crashkart/pkg/fulfillment"
	"github.com/example/crashkart/pkg/jobs"
	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/notify"
	"github.com/example/crashkart/pkg/repository"
)

func main() {
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting crashkart server",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to MySQL", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.Shipment{},
		&models.Product{},
		&models.ChargeRule{},
		&models.Coupon{},
		&models.User{},
		&models.Cart{},
		&models.PriceAlert{},
	); err != nil {
		logger.Fatal("Failed to migrate", zap.Error(err))
	}

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()

	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}

	publisher := events.NewPublisher(&cfg.Kafka)
	defer publisher.Close()

	system := protoactor.NewActorSystem()
	dispatcher, err := notify.NewActorDispatcher(system, &notify.LogSender{Logger: logger}, logger)
	if err != nil {
		logger.Fatal("Failed to spawn mailer actor", zap.Error(err))
	}

	orderRepo := repository.NewOrderRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	cartRepo := repository.NewCartRepository(db)

	lifecycle := fulfillment.NewService(orderRepo, dispatcher, publisher, mongoRepo, redisRepo, logger, nil)

	ship, conv, plat := cfg.Pricing.DefaultRuleFees()
	checkoutSvc := checkout.NewService(orderRepo, lifecycle, catalogRepo, redisRepo, dispatcher, publisher, mongoRepo, checkout.PricingDefaults{
		FreeShippingThreshold: cfg.Pricing.Threshold(),
		DefaultRule: models.ChargeRule{
			Scope:          models.ScopeAll,
			ShippingFee:    ship,
			ConvenienceFee: conv,
			PlatformFee:    plat,
		},
	}, logger, nil)

	runner := jobs.NewRunner(cartRepo, catalogRepo, redisRepo, dispatcher, cfg.Jobs, logger, nil)

	ctx := context.Background()
	if err := redisRepo.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	}
	if err := mongoRepo.Ping(ctx); err != nil {
		logger.Warn("MongoDB connection failed", zap.Error(err))
	}

	registry, err := discovery.NewRegistry(cfg.Etcd)
	if err != nil {
		logger.Fatal("Failed to connect to etcd", zap.Error(err))
	}
	defer registry.Close()

	instance := discovery.Instance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	if err := registry.Register(ctx, instance); err != nil {
		logger.Fatal("Failed to register service", zap.Error(err))
	}
	logger.Info("Service registered in etcd", zap.String("name", cfg.Server.Name))

	gw := gateway.NewGateway(cfg, logger, checkoutSvc, lifecycle, orderRepo, catalogRepo, redisRepo, mongoRepo, runner)
	gw.SetupRoutes()

	serverErr := make(chan error, 1)
	go func() {
		if err := gw.Start(); err != nil {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Fatal("Server error", zap.Error(err))
	}

	if err := registry.Deregister(ctx, instance); err != nil {
		logger.Error("Failed to deregister service", zap.Error(err))
	}
	if err := mongoRepo.Close(ctx); err != nil {
		logger.Error("Failed to close MongoDB", zap.Error(err))
	}

	logger.Info("Service stopped")
}
