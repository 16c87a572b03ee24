package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	"github.com/ignatzorin/marketplace-backend/internal/http/middleware"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	catalogHandler *handlers.CatalogHandler,
	orderHandler *handlers.OrderHandler,
	walletHandler *handlers.WalletHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	disputeHandler *handlers.DisputeHandler,
	webhookHandler *handlers.WebhookHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Вебхук платёжного шлюза. Авторизация через подпись в теле запроса.
	webhookRateLimit := middleware.RateLimitMiddleware(60, cfg.RateLimitPeriod)
	api.POST("/webhooks/payment", webhookRateLimit, webhookHandler.HandleNotification)

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Публичные маршруты
	api.GET("/services", catalogHandler.ListServices)
	api.GET("/services/:id", catalogHandler.GetService)
	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/auth/me", authHandler.GetMe)

		protected.POST("/services", catalogHandler.CreateService)
		protected.GET("/services/my", catalogHandler.ListMyServices)
		protected.PUT("/services/:id/active", catalogHandler.SetActive)

		protected.POST("/orders", orderHandler.CreateOrder)
		protected.GET("/orders/my", orderHandler.ListMyOrders)
		protected.GET("/orders/:id", orderHandler.GetOrder)
		protected.POST("/orders/:id/confirm", orderHandler.ConfirmOrder)
		protected.POST("/orders/:id/start", orderHandler.StartWork)
		protected.POST("/orders/:id/deliver", orderHandler.Deliver)
		protected.POST("/orders/:id/revision", orderHandler.RequestRevision)
		protected.POST("/orders/:id/approve", orderHandler.Approve)
		protected.POST("/orders/:id/cancel", orderHandler.Cancel)
		protected.POST("/orders/:id/attachments", orderHandler.AddAttachment)
		protected.POST("/orders/:id/dispute", disputeHandler.Open)

		protected.GET("/wallet", walletHandler.GetWallet)
		protected.GET("/wallet/summary", walletHandler.GetSummary)
		protected.GET("/wallet/entries", walletHandler.ListEntries)

		protected.POST("/withdrawals", withdrawalHandler.Create)
		protected.GET("/withdrawals", withdrawalHandler.ListMy)
		protected.GET("/withdrawals/:id", withdrawalHandler.Get)
		protected.POST("/withdrawals/:id/cancel", withdrawalHandler.Cancel)

		protected.GET("/disputes", disputeHandler.ListMy)
		protected.GET("/disputes/:id", disputeHandler.Get)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
	}

	// Административные маршруты
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireAdmin())
	{
		admin.GET("/withdrawals", withdrawalHandler.ListQueue)
		admin.POST("/withdrawals/:id/approve", withdrawalHandler.Approve)
		admin.POST("/withdrawals/:id/reject", withdrawalHandler.Reject)
		admin.POST("/withdrawals/:id/complete", withdrawalHandler.Complete)
		admin.POST("/withdrawals/:id/fail", withdrawalHandler.Fail)

		admin.GET("/disputes", disputeHandler.ListOpen)
		admin.POST("/disputes/:id/resolve", disputeHandler.Resolve)
	}

	return r
}
