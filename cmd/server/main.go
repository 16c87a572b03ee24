package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/db"
	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/marketplace-backend/internal/http/router"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
	"github.com/ignatzorin/marketplace-backend/internal/service"
	"github.com/ignatzorin/marketplace-backend/internal/storage"
	"github.com/ignatzorin/marketplace-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	deliveryStorage, err := storage.NewDeliveryStorage(cfg.DeliveryStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayServerKey)

	// Репозитории.
	store := repository.NewStore(dbConn)
	userRepo := repository.NewUserRepository(dbConn)
	serviceRepo := repository.NewServiceRepository(dbConn)
	orderRepo := repository.NewOrderRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn)
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	catalogService := service.NewCatalogService(serviceRepo)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	walletService := service.NewWalletService(store, walletRepo)
	escrowService := service.NewEscrowService(store, orderRepo, paymentRepo, walletService, gatewayClient, notificationService, cfg.PlatformFeePercent)
	orderService := service.NewOrderService(store, orderRepo, serviceRepo, paymentRepo, userRepo, gatewayClient, escrowService, notificationService, cfg.GatewayProvider, cfg.Currency, cfg.PaymentExpiry)
	withdrawalService := service.NewWithdrawalService(store, withdrawalRepo, walletRepo, walletService, notificationService, service.WithdrawalConfig{
		FixedFee:   cfg.WithdrawalFixedFee,
		FeePercent: cfg.WithdrawalFeePercent,
		MinBalance: cfg.MinWalletBalance,
		MaxPending: cfg.MaxPendingWithdrawals,
	})
	disputeService := service.NewDisputeService(store, disputeRepo, orderRepo, escrowService, notificationService)

	// Фоновая отмена заказов с истёкшим сроком оплаты.
	goroutine.SafeGo(func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := orderService.CancelExpiredPayments(ctx); err != nil {
					logger.Log.WithError(err).Error("main: ошибка отмены просроченных платежей")
				} else if n > 0 {
					logger.Log.WithField("count", n).Info("main: отменены заказы с истёкшей оплатой")
				}
			}
		}
	})

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	catalogHandler := httpHandlers.NewCatalogHandler(catalogService)
	orderHandler := httpHandlers.NewOrderHandler(orderService, deliveryStorage)
	walletHandler := httpHandlers.NewWalletHandler(walletService)
	withdrawalHandler := httpHandlers.NewWithdrawalHandler(withdrawalService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	webhookHandler := httpHandlers.NewWebhookHandler(escrowService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, catalogHandler, orderHandler, walletHandler, withdrawalHandler, disputeHandler, webhookHandler, notificationHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
