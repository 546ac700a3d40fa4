package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/fieldsync/backend/internal/application/services"
	"github.com/fieldsync/backend/internal/infrastructure/database"
	"github.com/fieldsync/backend/internal/infrastructure/upstream"
	"github.com/fieldsync/backend/internal/interfaces/middleware"
	"github.com/fieldsync/backend/internal/interfaces/rest"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Println("📦 Loaded configuration from .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3002"
	}

	// Initialize database connection
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	// Upstream client
	baseURL := os.Getenv("UPSTREAM_BASE_URL")
	if baseURL == "" {
		log.Fatal("UPSTREAM_BASE_URL is required")
	}
	token := os.Getenv("UPSTREAM_TOKEN")
	if token == "" {
		log.Fatal("UPSTREAM_TOKEN is required")
	}
	upstreamClient := upstream.NewClient(baseURL, token)
	if raw := os.Getenv("UPSTREAM_RETRY_BASE_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			upstreamClient.RetryBase = time.Duration(secs) * time.Second
		}
	}

	// Retention: disabled unless RETENTION_MAX_AGE_DAYS is set
	retention := services.RetentionConfig{
		Schedule: os.Getenv("RETENTION_SCHEDULE"),
	}
	if raw := os.Getenv("RETENTION_MAX_AGE_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			log.Fatalf("Invalid RETENTION_MAX_AGE_DAYS: %q", raw)
		}
		retention.MaxAge = time.Duration(days) * 24 * time.Hour
	}

	// Initialize service manager
	svcMgr := services.NewServiceManager(db, upstreamClient, retention)
	log.Println("🔧 Service manager initialized")

	// Create Gin router
	router := gin.Default()

	// CORS middleware - Allow credentials from any origin
	router.Use(middleware.Cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "golang",
		})
	})

	// Initialize handlers
	webhookHandler := rest.NewWebhookHandler(svcMgr)
	syncHandler := rest.NewSyncHandler(svcMgr)
	taskHandler := rest.NewTaskHandler(svcMgr)

	// API routes
	api := router.Group("/api")
	{
		api.POST("/webhooks/tasks", webhookHandler.HandleTaskEvent)
		api.POST("/sync/tasks/:id", syncHandler.TriggerSync)

		// /tasks/recent must be registered before /tasks/:id
		api.GET("/tasks/recent", taskHandler.GetRecentTasks)
		api.GET("/tasks/:id", taskHandler.GetTask)
		api.GET("/tasks/:id/changes/:field", taskHandler.GetFieldHistory)
		api.GET("/changes/:field/stats", taskHandler.GetFieldStats)
	}

	// Start scheduled retention sweep
	if err := svcMgr.StartRetention(); err != nil {
		log.Fatalf("Failed to start retention sweep: %v", err)
	}

	// Start server
	log.Println("\n═══════════════════════════════════════════════════════════════════════════")
	log.Println("🚀 FieldSync Backend Started Successfully")
	log.Println("═══════════════════════════════════════════════════════════════════════════")
	log.Printf("\n📍 Server:         http://localhost:%s", port)
	log.Printf("🔔 Webhooks:       http://localhost:%s/api/webhooks/tasks", port)
	log.Printf("🔄 Sync trigger:   http://localhost:%s/api/sync/tasks/:id", port)
	log.Printf("💾 Task API:       http://localhost:%s/api/tasks", port)
	log.Printf("💚 Health check:   http://localhost:%s/health\n", port)

	// Create HTTP Server
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop background workers
	svcMgr.StopRetention()
	log.Println("🛑 Retention sweep stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("⚠️  Error closing database: %v", err)
	}

	log.Println("Server exiting")
}
