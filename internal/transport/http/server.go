package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"docchat/internal/bootstrap"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), otelgin.Middleware(app.Config.App.Name))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	if app.Config.Telemetry.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{Registry: app.Registry})))
	}

	sessionHandler := handler.NewSessionHandler(app.Sessions, time.Duration(app.Config.Retention.MaxAgeHours)*time.Hour)
	uploadHandler := handler.NewUploadHandler(app.Uploads, app.Config.Upload.MaxChunkBytes)
	chatHandler := handler.NewChatHandler(app.Answers)

	api := router.Group("/api")

	sessionGroup := api.Group("/session")
	sessionGroup.POST("/create", sessionHandler.Create)
	sessionGroup.GET("/:sessionId", sessionHandler.Get)
	sessionGroup.POST("/:sessionId/reset", sessionHandler.Reset)
	sessionGroup.POST("/:sessionId/cleanup", sessionHandler.Cleanup)

	uploadGroup := api.Group("/upload")
	uploadGroup.POST("/init", uploadHandler.Init)
	uploadGroup.POST("/chunk", middleware.UploadToken(), uploadHandler.Chunk)
	uploadGroup.POST("/complete", middleware.UploadToken(), uploadHandler.Complete)

	api.POST("/chat/stream", chatHandler.Stream)

	return router
}
