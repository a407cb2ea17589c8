package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"

	"github.com/marketloop/wallet-service/cmd/routes"
	"github.com/marketloop/wallet-service/internal/gateway"
	"github.com/marketloop/wallet-service/internal/wallet"
	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/database"
	"github.com/marketloop/wallet-service/pkg/events"
	"github.com/marketloop/wallet-service/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Connect(cfg.DBUrl)
	if err != nil {
		logger.Fatal("Could not connect to database", logger.WithError(err))
	}

	store, err := wallet.NewGormStore(db)
	if err != nil {
		logger.Fatal("Could not migrate ledger schema", logger.WithError(err))
	}

	redisClient := events.NewRedisClient(cfg)
	ledger := wallet.NewLedger(store, cfg.ApplyMaxRetries)
	gatewayClient := gateway.NewHTTPClient(cfg)
	service := wallet.NewService(cfg, ledger, gatewayClient, redisClient)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := wallet.NewSweeper(service, cfg.SweepInterval, cfg.PendingTimeout)
	sweeper.Start(sweepCtx)
	redisClient.StartRequeueWorker(sweepCtx, cfg.SweepInterval)

	walletHandler := wallet.NewHandler(cfg, service)

	r := mux.NewRouter()
	handler := routes.RegisterRoutes(r, cfg, walletHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Server starting", logger.Fields{"port": cfg.Port, "env": cfg.Env})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen", logger.Fields{"port": cfg.Port, "error": err.Error()})
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	logger.Info("Server gracefully shut down")
}
