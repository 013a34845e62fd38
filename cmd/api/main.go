package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/quicktab/self-order-api/internal/config"
	"github.com/quicktab/self-order-api/internal/handler"
	"github.com/quicktab/self-order-api/internal/middleware"
	"github.com/quicktab/self-order-api/internal/service"
	"github.com/quicktab/self-order-api/internal/store"
	"github.com/quicktab/self-order-api/internal/store/memstore"
	"github.com/quicktab/self-order-api/internal/store/pgstore"
	"github.com/quicktab/self-order-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		docStore    store.Store
		dbPool      *pgxpool.Pool
		redisClient *redis.Client
		amqpConn    *amqp.Connection
		amqpCh      *amqp.Channel
	)

	switch cfg.Store.Driver {
	case "memory":
		docStore = memstore.New()
		log.Info("using in-memory document store")
	default:
		// PostgreSQL
		poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
		if err != nil {
			log.Error("parse db config", "error", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = cfg.DB.MaxConns

		dbPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Error("connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		log.Info("connected to PostgreSQL")

		// Redis
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("connect to Redis", "error", err)
			os.Exit(1)
		}
		log.Info("connected to Redis")

		// RabbitMQ
		amqpConn, err = amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		amqpCh, err = amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer amqpCh.Close()

		if err := worker.SetupRabbitMQ(amqpCh); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}
		log.Info("connected to RabbitMQ")

		docStore = pgstore.New(dbPool, redisClient)
	}

	// Services
	authSvc := service.NewAuthService(docStore, cfg.JWT.Secret, cfg.JWT.Expiration)
	restaurantSvc := service.NewRestaurantService(docStore, redisClient, log, cfg.Server.PublicBaseURL)
	cartSvc := service.NewCartService(docStore, log)
	orderSvc := service.NewOrderService(docStore, cartSvc, amqpCh, log)

	// Handlers
	authH := handler.NewAuthHandler(authSvc, restaurantSvc)
	restaurantH := handler.NewRestaurantHandler(restaurantSvc)
	cartH := handler.NewCartHandler(cartSvc, restaurantSvc)
	orderH := handler.NewOrderHandler(orderSvc, restaurantSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/staff/register", authH.StaffRegister)
		auth.POST("/login", authH.Login)

		restaurants := v1.Group("/restaurants")
		restaurants.GET("/lookup", restaurantH.Lookup)
		restaurants.GET("/:id/menu", restaurantH.Menu)
		restaurants.GET("/:id/menu/stream", restaurantH.MenuStream)
		restaurants.GET("/:id/qrcode.png", restaurantH.CodeQR)

		staff := restaurants.Group("", middleware.AuthMiddleware(cfg.JWT.Secret), middleware.StaffOnly())
		staff.POST("", restaurantH.Create)
		staff.POST("/:id/menu", restaurantH.AddMenuItem)
		staff.PUT("/:id/menu/:itemID", restaurantH.UpdateMenuItem)
		staff.GET("/:id/orders", orderH.ListRestaurantOrders)
		staff.GET("/:id/orders/stream", orderH.RestaurantOrderStream)
		staff.POST("/:id/orders/:orderID/advance", orderH.Advance)
		staff.GET("/:id/notifications", restaurantH.Notifications)
		staff.GET("/:id/notifications/stream", restaurantH.NotificationsStream)

		cart := v1.Group("/cart", middleware.AuthMiddleware(cfg.JWT.Secret))
		cart.GET("", cartH.GetCart)
		cart.GET("/stream", cartH.CartStream)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)
		cart.DELETE("", cartH.Clear)

		orders := v1.Group("/orders", middleware.AuthMiddleware(cfg.JWT.Secret))
		orders.POST("", orderH.PlaceOrder)
		orders.GET("", orderH.ListOrders)
		orders.GET("/stream", orderH.OrderStream)
		orders.GET("/:id", orderH.GetOrder)
		orders.POST("/:id/rating", orderH.Rate)
	}

	// Worker
	var notifier *worker.NotificationWorker
	if amqpCh != nil {
		notifier = worker.NewNotificationWorker(amqpCh, docStore, redisClient, log)
		if err := notifier.Start(ctx); err != nil {
			log.Error("start notification worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	if notifier != nil {
		notifier.Stop()
	}
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
