package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ridetrack/internal/config"
	"ridetrack/internal/middleware"
	"ridetrack/internal/relay"
	"ridetrack/internal/repositories/mongodb"
	"ridetrack/internal/rides"
	"ridetrack/pkg/cache"
	"ridetrack/pkg/database"
	"ridetrack/pkg/logger"
	"ridetrack/pkg/maps"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
		Output: "stdout",
		Colors: cfg.App.Debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	directory := rides.NewClient(cfg.Rides.BaseURL, cfg.Rides.Timeout)

	var opts []relay.HubOption

	// Redis and Mongo are optional: the relay degrades to in-memory
	// state and no audit trail rather than refusing to start.
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, channel snapshots disabled")
		} else {
			opts = append(opts, relay.WithSnapshotStore(
				relay.NewRedisSnapshotStore(redisCache, cfg.Redis.SnapshotTTL)))
			defer redisCache.Close()
		}
	}

	var mongo *database.MongoDB
	if cfg.Database.Enabled {
		mongo, err = database.NewMongoDB(cfg.Database)
		if err != nil {
			log.WithError(err).Warn("MongoDB unavailable, audit trail disabled")
		} else {
			defer mongo.Close()
			if err := database.NewMigrator(mongo.Database).Up(); err != nil {
				log.WithError(err).Warn("Migrations failed")
			}
			opts = append(opts, relay.WithAnomalyRecorder(mongodb.NewAuditRepository(mongo.Database)))
		}
	}

	if cfg.Maps.GoogleMaps.APIKey != "" {
		provider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleMaps.APIKey)
		if err != nil {
			log.WithError(err).Warn("Google Maps unavailable, using straight-line ETA")
		} else {
			opts = append(opts, relay.WithDistanceProvider(provider))
		}
	}

	hub := relay.NewHub(cfg.WebSocket, directory, log, opts...)
	go hub.Run()

	handler := relay.NewHandler(hub, cfg.WebSocket, log)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(log))

	router.GET("/ws", handler.HandleWebSocket)
	router.GET("/channels", handler.HandleChannels)
	router.GET("/health", func(c *gin.Context) {
		health := gin.H{
			"status":  "healthy",
			"version": cfg.App.Version,
		}
		if redisCache != nil {
			health["snapshots"] = "enabled"
		}
		if mongo != nil {
			health["audit"] = "enabled"
		}
		c.JSON(http.StatusOK, health)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.App.Port).Info("Tracking relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}
