// Package jobs holds the scheduled batch work: abandoned-cart reminders and
// price-drop / back-in-stock alerts. Every job is bounded to one batch per
// invocation and marks each row before dispatching its notification, so a
// re-invoked or crashed batch skips work already claimed rather than
// double-mailing customers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/crashkart/pkg/config"
	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/notify"
)

// ErrUnknownJob is returned by Run for a job name it does not know.
var ErrUnknownJob = errors.New("unknown job")

// CartStore is the persistence the jobs read and claim rows from.
type CartStore interface {
	FindAbandonedCarts(ctx context.Context, cutoff, remindedBefore time.Time, maxReminders, limit int) ([]models.Cart, error)
	MarkCartReminded(ctx context.Context, cartID string, remindersSeen int, at time.Time) (bool, error)
	FindTriggeredAlerts(ctx context.Context, kind models.AlertKind, limit int) ([]models.PriceAlert, error)
	DisarmAlert(ctx context.Context, alertID string, at time.Time) (bool, error)
}

// Catalog resolves the product behind an alert for the notification body.
type Catalog interface {
	FindProduct(ctx context.Context, id string) (*models.Product, error)
}

// ProcessedMarker is the cross-process idempotency mark in front of the
// database claim. It is best effort: when it errors the database counter
// guard still prevents double sends within a cadence window.
type ProcessedMarker interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Report is the per-invocation outcome of one batch job.
type Report struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Sent      int    `json:"sent"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

type Runner struct {
	carts      CartStore
	catalog    Catalog
	marks      ProcessedMarker
	dispatcher notify.Dispatcher
	cfg        config.JobsConfig
	logger     *zap.Logger
	clock      func() time.Time
}

// NewRunner wires a batch runner. marks may be nil when no shared mark
// store is available; the jobs then rely on the database guards alone.
func NewRunner(carts CartStore, catalog Catalog, marks ProcessedMarker, dispatcher notify.Dispatcher, cfg config.JobsConfig, logger *zap.Logger, clock func() time.Time) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{
		carts:      carts,
		catalog:    catalog,
		marks:      marks,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		clock:      clock,
	}
}

// Run executes one job by name. Names match the admin trigger endpoint.
func (r *Runner) Run(ctx context.Context, name string) (Report, error) {
	switch name {
	case "abandoned-carts":
		return r.RunAbandonedCartReminders(ctx)
	case "price-drop-alerts":
		return r.RunPriceDropAlerts(ctx)
	case "restock-alerts":
		return r.RunRestockAlerts(ctx)
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
}

// RunAbandonedCartReminders mails one reminder to each cart idle past the
// configured window, up to the per-cart cap and the batch size. The cart
// row is claimed before the mail goes out; a dispatch failure leaves the
// claim in place, trading a lost reminder for never double-mailing.
func (r *Runner) RunAbandonedCartReminders(ctx context.Context) (Report, error) {
	report := Report{Job: "abandoned-carts"}
	now := r.clock()

	carts, err := r.carts.FindAbandonedCarts(ctx,
		now.Add(-r.cfg.ReminderAfter),
		now.Add(-r.cfg.ReminderEvery),
		r.cfg.MaxReminders,
		r.cfg.BatchSize,
	)
	if err != nil {
		return report, fmt.Errorf("abandoned carts: %w", err)
	}

	for _, cart := range carts {
		report.Processed++

		if !r.claim(ctx, "cart-reminder:"+cart.ID+":"+strconv.Itoa(cart.RemindersSent)) {
			report.Skipped++
			continue
		}

		claimed, err := r.carts.MarkCartReminded(ctx, cart.ID, cart.RemindersSent, now)
		if err != nil {
			r.logger.Error("cart reminder claim failed", zap.String("cart_id", cart.ID), zap.Error(err))
			report.Failed++
			continue
		}
		if !claimed {
			report.Skipped++
			continue
		}

		if err := r.dispatcher.Dispatch(ctx, notify.KindAbandonedCart, notify.CartSnapshot(cart), cart.Email); err != nil {
			r.logger.Warn("cart reminder dispatch failed", zap.String("cart_id", cart.ID), zap.Error(err))
			report.Failed++
			continue
		}
		report.Sent++
	}

	r.logReport(report)
	return report, nil
}

// RunPriceDropAlerts notifies customers whose armed price alert has been
// met by the product's current price.
func (r *Runner) RunPriceDropAlerts(ctx context.Context) (Report, error) {
	return r.runAlerts(ctx, "price-drop-alerts", models.AlertPriceDrop, notify.KindPriceDrop)
}

// RunRestockAlerts notifies customers whose watched product is back in
// stock.
func (r *Runner) RunRestockAlerts(ctx context.Context) (Report, error) {
	return r.runAlerts(ctx, "restock-alerts", models.AlertRestock, notify.KindBackInStock)
}

func (r *Runner) runAlerts(ctx context.Context, job string, kind models.AlertKind, notifyKind notify.Kind) (Report, error) {
	report := Report{Job: job}
	now := r.clock()

	alerts, err := r.carts.FindTriggeredAlerts(ctx, kind, r.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("%s: %w", job, err)
	}

	for _, alert := range alerts {
		report.Processed++

		if !r.claim(ctx, "alert:"+alert.ID) {
			report.Skipped++
			continue
		}

		claimed, err := r.carts.DisarmAlert(ctx, alert.ID, now)
		if err != nil {
			r.logger.Error("alert claim failed", zap.String("alert_id", alert.ID), zap.Error(err))
			report.Failed++
			continue
		}
		if !claimed {
			report.Skipped++
			continue
		}

		product, err := r.catalog.FindProduct(ctx, alert.ProductID)
		if err != nil {
			// The alert is already disarmed; losing this mail beats
			// re-arming and risking a duplicate.
			r.logger.Error("alert product lookup failed", zap.String("alert_id", alert.ID), zap.Error(err))
			report.Failed++
			continue
		}

		if err := r.dispatcher.Dispatch(ctx, notifyKind, notify.ProductSnapshot(*product), alert.Email); err != nil {
			r.logger.Warn("alert dispatch failed", zap.String("alert_id", alert.ID), zap.Error(err))
			report.Failed++
			continue
		}
		report.Sent++
	}

	r.logReport(report)
	return report, nil
}

// claim takes the shared idempotency mark. A mark-store error is logged
// and treated as claimed so the database guard decides.
func (r *Runner) claim(ctx context.Context, key string) bool {
	if r.marks == nil {
		return true
	}
	ok, err := r.marks.MarkProcessed(ctx, key, r.cfg.ProcessedMarkTTL)
	if err != nil {
		r.logger.Warn("processed mark unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

func (r *Runner) logReport(report Report) {
	r.logger.Info("batch job finished",
		zap.String("job", report.Job),
		zap.Int("processed", report.Processed),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))
}
