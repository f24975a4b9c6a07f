package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"noteshub/internal/drive"
	"noteshub/internal/models"
	"noteshub/internal/service"
	"noteshub/internal/store"
	"noteshub/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	userIDKey    = "userID"
	userEmailKey = "userEmail"
)

// Handler contains HTTP handlers
type Handler struct {
	catalog   *service.CatalogService
	purchases *service.PurchaseService
	access    *drive.AccessManager
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	purchases *service.PurchaseService,
	access *drive.AccessManager,
) *Handler {
	return &Handler{
		catalog:   catalog,
		purchases: purchases,
		access:    access,
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

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/categories/:kind", h.listCategories)

		authed := v1.Group("")
		authed.Use(authMiddleware())
		{
			authed.PATCH("/products/:id/active", h.setProductActive)
			authed.POST("/checkout", h.checkout)
			authed.POST("/payments/verify", h.verifyPayment)
			authed.GET("/purchases", h.listPurchases)
			authed.GET("/purchases/:productID/status", h.purchaseStatus)
			authed.GET("/drive/folders/:id/contents", h.folderContents)
			authed.POST("/drive/access", h.grantAccess)
			authed.DELETE("/drive/access", h.revokeAccess)
			authed.GET("/drive/access", h.checkAccess)
		}
	}
}

// authMiddleware reads the identity set by the upstream auth proxy.
// Requests without it get a distinct 401 so clients can redirect to
// sign-in.
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Set(userEmailKey, c.GetHeader("X-User-Email"))
		c.Next()
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listProducts handles catalog listing with filters
func (h *Handler) listProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "12"))
	if limit > 100 {
		limit = 100
	}

	filter := store.ProductFilter{
		BatchID:    c.Query("batch_id"),
		BranchID:   c.Query("branch_id"),
		SemesterID: c.Query("semester_id"),
		TypeID:     c.Query("type_id"),
		Search:     c.Query("search"),
		Page:       page,
		Limit:      limit,
	}

	resp, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list products",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getProduct handles product detail
func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load product"})
		return
	}

	c.JSON(http.StatusOK, product)
}

var categoryKinds = map[string]bool{
	models.CategoryBatch:    true,
	models.CategoryBranch:   true,
	models.CategorySemester: true,
	models.CategoryType:     true,
}

// listCategories handles category listing (batches, branches,
// semesters, types)
func (h *Handler) listCategories(c *gin.Context) {
	kind := c.Param("kind")
	if !categoryKinds[kind] {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown category"})
		return
	}

	categories, err := h.catalog.ListCategories(c.Request.Context(), kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list categories"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// setProductActive toggles product availability. Products are never
// deleted, only deactivated.
func (h *Handler) setProductActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.catalog.SetProductActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type checkoutRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// checkout handles gateway order creation
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.purchases.Checkout(c.Request.Context(), c.GetString(userIDKey), req.ProductID)
	if err != nil {
		h.writePurchaseError(c, err, "Failed to create payment order")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type verifyPaymentRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// verifyPayment handles the gateway-confirmed purchase completion
func (h *Handler) verifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	purchase, err := h.purchases.VerifyAndComplete(c.Request.Context(),
		c.GetString(userIDKey), c.GetString(userEmailKey),
		req.ProductID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		h.writePurchaseError(c, err, "Failed to complete purchase")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"purchase": purchase,
	})
}

// writePurchaseError maps business-rule rejections to client statuses
func (h *Handler) writePurchaseError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyPurchased):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProductUnavailable):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		util.GetLogger().Error(fallback, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// listPurchases handles the buyer's purchase history
func (h *Handler) listPurchases(c *gin.Context) {
	purchases, err := h.purchases.ListPurchases(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list purchases"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

// purchaseStatus reports whether the buyer owns a product
func (h *Handler) purchaseStatus(c *gin.Context) {
	purchased, err := h.purchases.HasPurchased(c.Request.Context(),
		c.GetString(userIDKey), c.Param("productID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check purchase"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchased": purchased})
}

// folderContents lists the files of a purchased folder for the buyer
func (h *Handler) folderContents(c *gin.Context) {
	folderID := c.Param("id")
	email := c.GetString(userEmailKey)

	if email == "" || !h.access.CheckAccess(c.Request.Context(), folderID, email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "No access to this folder"})
		return
	}

	files, err := h.access.FolderContents(c.Request.Context(), folderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch folder contents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

type accessRequest struct {
	FolderID  string `json:"folder_id" binding:"required"`
	UserEmail string `json:"user_email" binding:"required,email"`
}

// grantAccess handles a manual folder grant
func (h *Handler) grantAccess(c *gin.Context) {
	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if !h.access.GrantAccess(c.Request.Context(), req.FolderID, req.UserEmail) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant access"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// revokeAccess handles a manual folder revocation
func (h *Handler) revokeAccess(c *gin.Context) {
	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	revoked := h.access.RevokeAccess(c.Request.Context(), req.FolderID, req.UserEmail)

	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

// checkAccess reports whether a user can read a folder
func (h *Handler) checkAccess(c *gin.Context) {
	folderID := c.Query("folder_id")
	email := c.Query("user_email")
	if folderID == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folder_id and user_email are required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has_access": h.access.CheckAccess(c.Request.Context(), folderID, email),
	})
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
