package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/orizonpaybr/gateway-api-sub000/docs"
	"github.com/orizonpaybr/gateway-api-sub000/internal/config"
	"github.com/orizonpaybr/gateway-api-sub000/internal/database"
	"github.com/orizonpaybr/gateway-api-sub000/internal/handlers"
	mW "github.com/orizonpaybr/gateway-api-sub000/internal/middleware"
	"github.com/orizonpaybr/gateway-api-sub000/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title PIX Gateway Transaction API
// @version 1.0
// @description Transaction fee-calculation and balance-settlement core for the payments admin platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("pix.key", "PIX_KEY")
	viper.BindEnv("pix.merchant_name", "PIX_MERCHANT_NAME")
	viper.BindEnv("pix.merchant_city", "PIX_MERCHANT_CITY")
	viper.BindEnv("pix.webhook_secret", "PIX_WEBHOOK_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "PIX Gateway Transaction API"
	docs.SwaggerInfo.Description = "Transaction fee-calculation and balance-settlement core"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	limits := config.LoadLimitsConfig()

	transactionService := services.NewTransactionService(db, redisClient, limits)
	dashboardService := services.NewDashboardService(db, redisClient)
	pixService := services.NewPixService(redisClient,
		viper.GetString("pix.key"),
		viper.GetString("pix.merchant_name"),
		viper.GetString("pix.merchant_city"))

	pixHandler := handlers.NewPixHandler(transactionService, pixService,
		limits.ChargeExpiry, viper.GetString("pix.webhook_secret"))
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.RateLimit(redisClient, limits.ConsultRateLimit, limits.ConsultRateWindow))
			r.Get("/consult/{identifier}", transactionService.LookupStatus)
		})

		// PSP callback (HMAC authenticated)
		r.Post("/pix/webhook", pixHandler.Webhook)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/transactions", transactionService.ListTransactions)
			r.Get("/transactions/{txId}", transactionService.GetTransaction)
			r.Post("/transactions/deposits", transactionService.CreateDeposit)
			r.Post("/transactions/withdrawals", transactionService.CreateWithdrawal)
			r.Put("/transactions/{txId}/status", transactionService.UpdateTransactionStatus)

			r.Post("/pix/charges", pixHandler.CreateCharge)

			r.Get("/dashboard/summary", dashboardHandler.Summary)

			r.Get("/settings/fees", transactionService.GetFeeSettings)
			r.Put("/settings/fees", transactionService.UpdateFeeSettings)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
