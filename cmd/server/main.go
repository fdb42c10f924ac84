package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/best07008/kujibiki/internal/config"
	"github.com/best07008/kujibiki/internal/handlers"
	"github.com/best07008/kujibiki/internal/services"
	"github.com/best07008/kujibiki/internal/store"
	"github.com/best07008/kujibiki/internal/ws"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	if err := config.Initialize(env); err != nil {
		log.Fatalf("failed to initialize config: %v", err)
	}
	cfg := config.Get()

	kv := newStore(cfg)
	defer kv.Close()

	files := store.NewFileStore(cfg.Store.FileDir)
	hub := ws.NewHub()

	manager := services.NewSessionManager(kv, files, hub, services.SessionManagerOptions{
		TTL:              time.Duration(cfg.Session.TTL) * time.Second,
		SweepInterval:    time.Duration(cfg.Session.SweepInterval) * time.Second,
		PersistQueueSize: cfg.Session.PersistQueueSize,
	})
	manager.Start()
	defer manager.Stop()

	sessionHandler := handlers.NewSessionHandler(manager)
	streamHandler := handlers.NewStreamHandler(manager, hub)
	wsHandler := handlers.NewWSHandler(manager, hub)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	session := r.Group("/session")
	{
		session.POST("/create", sessionHandler.CreateSession)
		session.GET("/:id", sessionHandler.GetSession)
		session.DELETE("/:id", sessionHandler.DeleteSession)
		session.POST("/:id/join", sessionHandler.JoinSession)
		session.POST("/:id/ready", sessionHandler.MarkReady)
		session.POST("/:id/start", sessionHandler.StartSession)
		session.POST("/:id/heartbeat", sessionHandler.Heartbeat)
		session.GET("/:id/stream", streamHandler.HandleStream)
	}
	r.GET("/ws/session/:id", wsHandler.HandleWebSocket)

	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Server.Port),
		Handler:     r,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// No write timeout: stream connections live until the client leaves.
	}

	go func() {
		log.Printf("server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// newStore picks the KV backend from config. A Redis that cannot be reached
// at startup degrades to the in-process store with a log line rather than
// refusing to serve.
func newStore(cfg *config.AppConfig) store.Store {
	if strings.ToLower(cfg.Store.Backend) != "redis" {
		log.Println("[Store] using in-memory store")
		return store.NewMemoryStore()
	}

	client, err := store.NewRedisClient(
		cfg.Store.Redis.Address,
		cfg.Store.Redis.Password,
		cfg.Store.Redis.DB,
		cfg.Store.Redis.PoolSize,
		cfg.Store.Redis.PoolTimeout,
	)
	if err != nil {
		log.Printf("[Store] redis unavailable, falling back to in-memory store: %v", err)
		return store.NewMemoryStore()
	}
	log.Printf("[Store] using redis store at %s", cfg.Store.Redis.Address)
	return store.NewRedisStore(client)
}
