// Command gateway runs the payment gateway process: it validates, commits,
// and cancels card charges for every screen in the shop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"icering/internal/config"
	"icering/internal/gatewaysvc"
	"icering/internal/httpapi"
	"icering/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateway := gatewaysvc.New(cfg.GatewayPort, logger)

	opsMux := http.NewServeMux()
	httpapi.NewHandlerSet(httpapi.Options{Logger: logger}).Register(opsMux)
	opsServer := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort), Handler: opsMux}
	go func() {
		logger.Info("gateway ops server listening", logging.Int("port", int(cfg.HTTPPort)))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway ops server terminated", logging.Error(err))
		}
	}()

	go func() {
		if err := gateway.ListenAndServe(); err != nil {
			logger.Fatal("gateway terminated", logging.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("gateway shutting down")
	_ = opsServer.Close()
}
