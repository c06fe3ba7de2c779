package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

// uploadBodyLimit leaves room for multipart framing around the file itself.
const uploadBodyLimit = service.MaxUploadSize + 1<<20

type HTTPHandler struct {
	inventoryService *service.InventoryService
	logger           *zap.Logger
}

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

func NewHTTPHandler(inventoryService *service.InventoryService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{inventoryService: inventoryService, logger: logger}
}

// NewRouter mounts every route. /health is public, /api requires a token.
func NewRouter(h *HTTPHandler, auth *Authenticator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders("Authorization", idempotencyHeader)
	r.Use(cors.New(corsConfig))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api", AuthMiddleware(auth))
	api.GET("/inventory", h.ListGroups)
	api.POST("/inventory", h.CreateGroup)
	api.POST("/inventory/link", h.LinkProduct)
	api.POST("/inventory/unlink", h.UnlinkProduct)
	api.PUT("/inventory/:id", h.UpdateGroup)
	api.DELETE("/inventory/:id", h.DeleteGroup)
	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)
	api.POST("/uploads", h.Upload)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ListGroups(c *gin.Context) {
	groups, err := h.inventoryService.ListGroups(c.Request.Context(), sellerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, groups)
}

func (h *HTTPHandler) CreateGroup(c *gin.Context) {
	var payload domain.GroupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	group, err := h.inventoryService.CreateGroup(c.Request.Context(), sellerID(c), payload, c.GetHeader(idempotencyHeader))
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusCreated, group)
}

func (h *HTTPHandler) UpdateGroup(c *gin.Context) {
	var payload domain.GroupPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	group, err := h.inventoryService.UpdateGroup(c.Request.Context(), sellerID(c), c.Param("id"), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, group)
}

func (h *HTTPHandler) DeleteGroup(c *gin.Context) {
	if err := h.inventoryService.DeleteGroup(c.Request.Context(), sellerID(c), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

func (h *HTTPHandler) LinkProduct(c *gin.Context) {
	var req domain.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GroupID == "" || req.ProductID == "" {
		fail(c, http.StatusBadRequest, "variantId and productId are required")
		return
	}

	if err := h.inventoryService.LinkProduct(c.Request.Context(), sellerID(c), req.GroupID, req.ProductID); err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

func (h *HTTPHandler) UnlinkProduct(c *gin.Context) {
	var req domain.UnlinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GroupID == "" {
		fail(c, http.StatusBadRequest, "variantId is required")
		return
	}

	if err := h.inventoryService.UnlinkProduct(c.Request.Context(), sellerID(c), req.GroupID); err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.inventoryService.ListProducts(c.Request.Context(), sellerID(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, products)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	product, err := h.inventoryService.GetProduct(c.Request.Context(), sellerID(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusOK, product)
}

func (h *HTTPHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, uploadBodyLimit)

	header, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, service.ErrUploadTooLarge.Error())
			return
		}
		fail(c, http.StatusBadRequest, "file is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer file.Close()

	url, err := h.inventoryService.UploadImage(c.Request.Context(), sellerID(c),
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respond(c, http.StatusCreated, uploadResponse{URL: url})
}

func (h *HTTPHandler) handleError(c *gin.Context, err error) {
	status, message := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("seller_id", sellerID(c)),
			zap.Error(err))
	}
	_ = c.Error(err)
	fail(c, status, message)
}

func httpStatus(err error) (int, string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, service.ErrGroupNotFound), errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrProductAlreadyLinked),
		errors.Is(err, service.ErrVersionConflict),
		errors.Is(err, service.ErrProductBusy),
		errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, service.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, service.ErrUploadsDisabled):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func sellerID(c *gin.Context) string {
	return SellerFromContext(c.Request.Context())
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, response{Success: false, Error: message})
}
