package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/db"
	"tasksync/internal/docstore"
	httpServer "tasksync/internal/http"
	"tasksync/internal/http/handlers"
	"tasksync/internal/http/middleware"
	"tasksync/internal/logger"
	"tasksync/internal/service"
	"tasksync/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	docs := openDocstore(cfg)
	checks := map[string]handlers.Pinger{"docstore": docs}

	rdb := db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = redisPinger{rdb}
	}

	hub := ws.NewHub(docs, ws.HubConfig{
		Collection: cfg.TasksCollection,
		OpTimeout:  cfg.WriteTimeout,
	})

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics())

	// CORS for production (frontend on different domain)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Hub:           hub,
		Redis:         rdb,
		Checks:        checks,
		Version:       version,
		AllowedOrigin: cfg.AllowedOrigin,
		DevMode:       cfg.DevMode,
		RateLimit:     cfg.APIRateLimit,
		RateWindow:    cfg.APIRateWindow,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "docstore", cfg.DocstoreDriver, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	hub.CloseAll(5 * time.Second)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := docs.Close(ctx); err != nil {
		logger.Error("docstore close failed", "error", err)
	}

	logger.Info("server exited")
}

func openDocstore(cfg *config.Config) docstore.Store {
	switch cfg.DocstoreDriver {
	case config.DriverMongo:
		client := db.ConnectMongo(cfg.MongoURI)
		return docstore.NewMongo(client, cfg.MongoDatabase, cfg.PollInterval)

	case config.DriverPostgres:
		pool := db.Connect(cfg.DatabaseURL)
		pg := docstore.NewPostgres(pool, cfg.PollInterval)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to apply migrations", "error", err)
		}
		return pg

	default:
		logger.Warn("using in-memory document store; tasks are lost on restart")
		return docstore.NewMemory()
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
