// Package gateway is the HTTP surface: checkout, order lifecycle, invoice
// reconstruction, tracking, admin pricing configuration and the internal
// batch-job trigger.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/example/crashkart/pkg/checkout"
	"github.com/example/crashkart/pkg/config"
	"github.com/example/crashkart/pkg/fulfillment"
	"github.com/example/crashkart/pkg/invoice"
	"github.com/example/crashkart/pkg/jobs"
	"github.com/example/crashkart/pkg/models"
	"github.com/example/crashkart/pkg/repository"
)

// Cache is the optional read-through cache in front of order lookups plus
// the invalidation hook for charge-rule mutations.
type Cache interface {
	GetOrderCache(ctx context.Context, orderID string) (*models.Order, error)
	CacheOrder(ctx context.Context, order *models.Order) error
	InvalidateChargeRules(ctx context.Context) error
}

// AuditReader serves the admin audit-trail view.
type AuditReader interface {
	GetAuditLogs(ctx context.Context, entityID string, limit int64) ([]*repository.AuditLog, error)
}

type Gateway struct {
	config      *config.Config
	logger      *zap.Logger
	router      *gin.Engine
	checkout    *checkout.Service
	fulfillment *fulfillment.Service
	orders      *repository.OrderRepository
	catalog     *repository.CatalogRepository
	cache       Cache
	audit       AuditReader
	jobs        *jobs.Runner
}

func NewGateway(cfg *config.Config, logger *zap.Logger, co *checkout.Service, ful *fulfillment.Service, orders *repository.OrderRepository, catalog *repository.CatalogRepository, cache Cache, audit AuditReader, runner *jobs.Runner) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	return &Gateway{
		config:      cfg,
		logger:      logger,
		router:      router,
		checkout:    co,
		fulfillment: ful,
		orders:      orders,
		catalog:     catalog,
		cache:       cache,
		audit:       audit,
		jobs:        runner,
	}
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/checkout", g.placeOrder)

		orders := v1.Group("/orders")
		{
			orders.GET("", g.listOrders)
			orders.GET("/:id", g.getOrder)
			orders.GET("/:id/invoice", g.getInvoice)
			orders.GET("/:id/tracking", g.getTracking)
			orders.POST("/:id/payment-confirm", g.confirmPayment)
			orders.PUT("/:id/status", g.updateStatus)
			orders.PUT("/status", g.updateStatusBulk)
			orders.POST("/:id/reconcile", g.reconcile)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/charge-rules", g.listChargeRules)
			admin.POST("/charge-rules", g.createChargeRule)
			admin.PUT("/charge-rules/:id", g.updateChargeRule)
			admin.DELETE("/charge-rules/:id", g.deleteChargeRule)

			admin.POST("/coupons", g.createCoupon)
			admin.DELETE("/coupons/:code", g.deleteCoupon)

			admin.GET("/orders/:id/audit", g.getAuditTrail)
		}

		v1.POST("/internal/jobs/:name", g.runJob)
	}

	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.config.Server.Host, g.config.Server.Port)
	g.logger.Info("gateway starting", zap.String("address", addr))
	return g.router.Run(addr)
}

// Router exposes the engine for tests and embedding servers.
func (g *Gateway) Router() http.Handler {
	return g.router
}

func (g *Gateway) placeOrder(c *gin.Context) {
	var req checkout.PlaceOrderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, charges, err := g.checkout.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order":   order,
		"charges": charges.Rounded(),
	})
}

func (g *Gateway) confirmPayment(c *gin.Context) {
	order, err := g.checkout.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) getOrder(c *gin.Context) {
	order, err := g.findOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) listOrders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	page, pageSize := pagination(c)

	orders, total, err := g.orders.ListOrdersByUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":    orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (g *Gateway) getInvoice(c *gin.Context) {
	order, err := g.findOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}

	charges := invoice.Reconstruct(*order)
	c.JSON(http.StatusOK, gin.H{
		"order_id":   order.ID,
		"status":     order.Status,
		"paid":       order.Paid,
		"coupon":     order.CouponCode,
		"charges":    charges.Rounded(),
		"created_at": order.CreatedAt,
	})
}

type trackingLine struct {
	ShipmentID        string        `json:"shipment_id"`
	ProductName       string        `json:"product_name"`
	Status            models.Status `json:"status"`
	TrackingNumber    string        `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time    `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
}

// getTracking serves the polling clients; there is no push channel, the
// order page refreshes against this endpoint.
func (g *Gateway) getTracking(c *gin.Context) {
	order, err := g.findOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}

	lines := make([]trackingLine, 0, len(order.Shipments))
	for _, s := range order.Shipments {
		lines = append(lines, trackingLine{
			ShipmentID:        s.ID,
			ProductName:       s.ProductName,
			Status:            s.Status,
			TrackingNumber:    s.TrackingNumber,
			EstimatedDelivery: s.EstimatedDelivery,
			DeliveredAt:       s.DeliveredAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":  order.ID,
		"status":    order.Status,
		"shipments": lines,
	})
}

type statusUpdateRequest struct {
	Status            models.Status `json:"status"`
	ShipmentID        string        `json:"shipment_id,omitempty"`
	TrackingNumber    string        `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time    `json:"estimated_delivery,omitempty"`
}

func (g *Gateway) updateStatus(c *gin.Context) {
	var req statusUpdateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := g.fulfillment.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, fulfillment.UpdateOptions{
		ShipmentID:        req.ShipmentID,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type bulkStatusRequest struct {
	OrderIDs []string      `json:"order_ids"`
	Status   models.Status `json:"status"`
}

func (g *Gateway) updateStatusBulk(c *gin.Context) {
	var req bulkStatusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.OrderIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_ids is required"})
		return
	}

	report := g.fulfillment.UpdateStatusBulk(c.Request.Context(), req.OrderIDs, req.Status)
	c.JSON(http.StatusOK, report)
}

func (g *Gateway) reconcile(c *gin.Context) {
	order, err := g.fulfillment.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) listChargeRules(c *gin.Context) {
	rules, err := g.catalog.FindChargeRules(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (g *Gateway) createChargeRule(c *gin.Context) {
	var rule models.ChargeRule
	if err := c.BindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.catalog.CreateChargeRule(c.Request.Context(), &rule); err != nil {
		g.fail(c, err)
		return
	}
	g.invalidateRules(c.Request.Context())
	c.JSON(http.StatusCreated, rule)
}

func (g *Gateway) updateChargeRule(c *gin.Context) {
	var rule models.ChargeRule
	if err := c.BindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = c.Param("id")

	if err := g.catalog.UpdateChargeRule(c.Request.Context(), &rule); err != nil {
		g.fail(c, err)
		return
	}
	g.invalidateRules(c.Request.Context())
	c.JSON(http.StatusOK, rule)
}

func (g *Gateway) deleteChargeRule(c *gin.Context) {
	if err := g.catalog.DeleteChargeRule(c.Request.Context(), c.Param("id")); err != nil {
		g.fail(c, err)
		return
	}
	g.invalidateRules(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (g *Gateway) createCoupon(c *gin.Context) {
	var coupon models.Coupon
	if err := c.BindJSON(&coupon); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.catalog.CreateCoupon(c.Request.Context(), &coupon); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (g *Gateway) deleteCoupon(c *gin.Context) {
	if err := g.catalog.DeleteCoupon(c.Request.Context(), c.Param("code")); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (g *Gateway) getAuditTrail(c *gin.Context) {
	logs, err := g.audit.GetAuditLogs(c.Request.Context(), c.Param("id"), 50)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}

func (g *Gateway) runJob(c *gin.Context) {
	report, err := g.jobs.Run(c.Request.Context(), c.Param("name"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// findOrder reads through the order cache when one is wired.
func (g *Gateway) findOrder(ctx context.Context, id string) (*models.Order, error) {
	if g.cache != nil {
		order, err := g.cache.GetOrderCache(ctx, id)
		if err == nil {
			return order, nil
		}
		if !repository.IsCacheMiss(err) {
			g.logger.Warn("order cache read failed", zap.String("order_id", id), zap.Error(err))
		}
	}

	order, err := g.orders.FindOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		if err := g.cache.CacheOrder(ctx, order); err != nil {
			g.logger.Warn("order cache write failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	return order, nil
}

func (g *Gateway) invalidateRules(ctx context.Context) {
	if g.cache == nil {
		return
	}
	if err := g.cache.InvalidateChargeRules(ctx); err != nil {
		g.logger.Warn("charge rule cache invalidation failed", zap.Error(err))
	}
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, fulfillment.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, fulfillment.ErrInvalidTransition),
		errors.Is(err, checkout.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrShipmentNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrCouponNotFound),
		errors.Is(err, repository.ErrRuleNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, jobs.ErrUnknownJob):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func pagination(c *gin.Context) (int, int) {
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "page_size", 20)
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func intQuery(c *gin.Context, name string, fallback int) int {
	var v int
	if _, err := fmt.Sscanf(c.Query(name), "%d", &v); err != nil || v <= 0 {
		return fallback
	}
	return v
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
