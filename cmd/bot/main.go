package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/paymebot/payrelay/internal/api"
	"github.com/paymebot/payrelay/internal/config"
	"github.com/paymebot/payrelay/internal/engine"
	"github.com/paymebot/payrelay/internal/relay"
	"github.com/paymebot/payrelay/internal/store"
	"github.com/paymebot/payrelay/internal/transport"
)

const (
	connectAttempts = 3
	connectDelay    = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("unable to build logger: %v", err)
	}
	defer logger.Sync()

	st, err := connectStore(cfg.DBSource, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer st.Close()

	if err := st.InitSchema(context.Background()); err != nil {
		logger.Fatal("schema initialization failed", zap.Error(err))
	}

	sender := transport.NewBridgeSender(cfg.BridgeURL)
	eng := engine.New(st, sender, cfg.ApproverID, logger)
	router := relay.New(eng, sender, cfg.ApproverID, logger)
	handler := api.NewHandler(eng, router, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.Int64("approver_id", cfg.ApproverID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Env == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// connectStore retries a bounded number of times; startup is the only place a
// store failure is allowed to be fatal.
func connectStore(dbSource string, logger *zap.Logger) (*store.Store, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		logger.Info("connecting to database", zap.Int("attempt", attempt), zap.Int("max", connectAttempts))
		st, err := store.New(dbSource)
		if err == nil {
			return st, nil
		}
		lastErr = err
		logger.Warn("database connection attempt failed", zap.Error(err))
		if attempt < connectAttempts {
			time.Sleep(connectDelay)
		}
	}
	return nil, lastErr
}
