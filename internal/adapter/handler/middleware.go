package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware rejects requests without a valid bearer token and stores
// the seller on the request context.
func AuthMiddleware(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sellerID, err := auth.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			fail(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(WithSeller(c.Request.Context(), sellerID))
		c.Next()
	}
}

// RequestLogger writes one zap line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if seller := SellerFromContext(c.Request.Context()); seller != "" {
			fields = append(fields, zap.String("seller_id", seller))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
