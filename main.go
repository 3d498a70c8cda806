package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"satukanvas/config"
	"satukanvas/config/database"
	"satukanvas/pkg/logger"
	"satukanvas/router"
	"satukanvas/socket"
	"satukanvas/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Sugar.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Sugar.Fatalf("Database unavailable: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		logger.Sugar.Fatalf("Could not apply schema: %v", err)
	}

	// With REDIS_ADDR set, frames are shared with every other node so a
	// session can span several server instances.
	var relay socket.Relay
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Sugar.Fatalf("Could not connect to Redis: %v", err)
		}
		defer rdb.Close()
		relay = socket.NewRedisRelay(rdb)
		logger.Sugar.Infof("Relaying sessions through Redis at %s", cfg.RedisAddr)
	}

	hub := socket.NewHub(nil, relay)
	handler, sessions := router.Setup(db, hub, cfg.JWTSecret)
	sessions.IdleGrace = cfg.Protocol.StaleAfter
	hub.OnRoomEmpty = sessions.EndIdle

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Sugar.Infof("Server listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("Graceful shutdown failed: %v", err)
	}
	<-hubDone
}
