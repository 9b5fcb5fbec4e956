// Command bughoused serves bughouse game sessions over HTTP/websockets.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vcsawant/bughouse-sub000/internal/cache"
	"github.com/vcsawant/bughouse-sub000/internal/config"
	"github.com/vcsawant/bughouse-sub000/internal/database"
	"github.com/vcsawant/bughouse-sub000/internal/rules"
	"github.com/vcsawant/bughouse-sub000/internal/server"

	// Rule engine implementations register themselves by mode at init time,
	// driver-style. Deployments link theirs in with a blank import here.
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.PostgresDSN != "" {
		if err := database.Connect(ctx, cfg.PostgresDSN); err != nil {
			logrus.WithError(err).Fatal("postgres connection failed")
		}
		if err := database.Migrate(ctx); err != nil {
			logrus.WithError(err).Fatal("postgres migration failed")
		}
	} else {
		logrus.Warn("BUGHOUSE_POSTGRES_DSN unset; completion records will not be persisted")
	}

	if cfg.RedisAddr != "" {
		if err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
			logrus.WithError(err).Fatal("redis connection failed")
		}
	} else {
		logrus.Warn("BUGHOUSE_REDIS_ADDR unset; move journaling disabled")
	}

	// Rule engines register themselves by mode; fail fast if the configured
	// mode has none.
	if eng, err := rules.New(cfg.GameMode); err != nil {
		logrus.WithError(err).Fatal("rule engine unavailable")
	} else {
		_ = eng
	}

	srv := server.New(server.Options{
		JWTSecret: []byte(cfg.JWTSecret),
		GameMode:  cfg.GameMode,
		ClockMs:   cfg.DefaultClockMs,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		logrus.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logrus.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	srv.Registry().CloseAll()
	if database.DB != nil {
		database.DB.Close()
	}
	if cache.Rdb != nil {
		_ = cache.Rdb.Close()
	}
}
