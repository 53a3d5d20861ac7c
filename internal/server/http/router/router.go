package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	pkgAuth "github.com/avoray/ordersync/internal/pkg/auth"
	"github.com/avoray/ordersync/internal/server/http/handlers"
	"github.com/avoray/ordersync/internal/server/http/middleware"
)

// Setup configures gin router with handlers and middleware.
func Setup(facade handlers.OrderSyncFacade, signer *pkgAuth.HMACVerifier, apiKeys *pkgAuth.APIKeyVerifier, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.DecompressRequest())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	webhookHandler := handlers.NewWebhookHandler(facade, signer)
	orderHandler := handlers.NewOrderHandler(facade)
	opsHandler := handlers.NewOpsHandler(facade)

	engine.GET("/healthz", opsHandler.Health)

	api := engine.Group("/api")
	api.POST("/gateway/webhook", webhookHandler.Handle)

	admin := api.Group("/admin")
	admin.Use(middleware.APIKeyRequired(apiKeys))
	admin.POST("/orders", orderHandler.Create)
	admin.GET("/orders/:id", orderHandler.Get)
	admin.POST("/orders/:id/transition", orderHandler.Transition)
	admin.POST("/orders/:id/assign", orderHandler.Assign)
	admin.GET("/orders/:id/audit", orderHandler.Audit)
	admin.GET("/dead-letters", opsHandler.DeadLetters)
	admin.POST("/reconcile", opsHandler.Reconcile)

	return engine
}
