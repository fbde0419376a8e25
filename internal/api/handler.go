package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/service"
	"stock-sync/internal/stream"
	"stock-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency the readiness probe checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// StreamOptions controls the streaming endpoints
type StreamOptions struct {
	KeepAlive time.Duration
	RetryMs   int
}

// Handler contains HTTP handlers
type Handler struct {
	acceptor    *service.OrderAcceptor
	inventory   *service.InventoryService
	broadcaster *stream.Broadcaster
	streamOpts  StreamOptions
	readiness   map[string]Pinger
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	acceptor *service.OrderAcceptor,
	inventory *service.InventoryService,
	broadcaster *stream.Broadcaster,
	streamOpts StreamOptions,
	readiness map[string]Pinger,
) *Handler {
	return &Handler{
		acceptor:    acceptor,
		inventory:   inventory,
		broadcaster: broadcaster,
		streamOpts:  streamOpts,
		readiness:   readiness,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", h.streamWebSocket)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/purchases", h.submitPurchase)
		v1.GET("/purchases/:receipt_id", h.getPurchase)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/stock", h.getStock)
		v1.PUT("/products/:id/stock", h.setStock)
		v1.POST("/products/:id/restock", h.restock)

		v1.GET("/stream", h.streamEvents)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.readiness {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// submitPurchase accepts a purchase and returns a receipt once it is enqueued
func (h *Handler) submitPurchase(c *gin.Context) {
	var req service.SubmitRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.CorrelationToken == "" {
		req.CorrelationToken = c.GetHeader("Idempotency-Key")
	}

	receipt, err := h.acceptor.Submit(c.Request.Context(), &req)
	if err != nil {
		writeError(c, "Failed to accept purchase", err)
		return
	}

	if receipt.Duplicate {
		c.JSON(http.StatusOK, receipt)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

// getPurchase returns the order behind a receipt and its current status
func (h *Handler) getPurchase(c *gin.Context) {
	order, err := h.acceptor.GetReceipt(c.Request.Context(), c.Param("receipt_id"))
	if err != nil {
		writeError(c, "Failed to get purchase", err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.inventory.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, "Failed to list products", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// getProduct returns catalog data with the freshest cached stock
func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	product, err := h.inventory.GetProduct(c.Request.Context(), productID)
	if err != nil {
		writeError(c, "Failed to get product", err)
		return
	}

	if lvl, err := h.inventory.GetStock(c.Request.Context(), productID); err == nil {
		product.Stock = lvl.Stock
		product.Version = lvl.Version
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) getStock(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	lvl, err := h.inventory.GetStock(c.Request.Context(), productID)
	if err != nil {
		writeError(c, "Failed to get stock", err)
		return
	}

	c.JSON(http.StatusOK, lvl)
}

type setStockRequest struct {
	Stock *int `json:"stock" binding:"required"`
}

// setStock corrects a product's stock to an absolute value
func (h *Handler) setStock(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var req setStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	evt, err := h.inventory.SetStock(c.Request.Context(), productID, *req.Stock)
	if err != nil {
		writeError(c, "Failed to set stock", err)
		return
	}

	c.JSON(http.StatusOK, evt)
}

type restockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) restock(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	evt, err := h.inventory.Restock(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		writeError(c, "Failed to restock product", err)
		return
	}

	c.JSON(http.StatusOK, evt)
}

func productIDParam(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return 0, false
	}
	return productID, true
}

// interestParam parses the product_id query of the streaming endpoints.
// Empty or "all" subscribes to every product.
func interestParam(c *gin.Context) (int64, bool) {
	raw := c.Query("product_id")
	if raw == "" || raw == "all" {
		return models.AllProducts, true
	}
	productID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product_id, expected a product ID or \"all\"",
		})
		return 0, false
	}
	return productID, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
