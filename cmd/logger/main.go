// Command logger runs the UDP log sink every other process emits to.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"icering/internal/config"
	"icering/internal/httpapi"
	"icering/internal/logging"
	"icering/internal/logsvc"
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

	receiver := logsvc.NewReceiver(cfg.LogSinkPort, os.Stdout, true, logger)

	opsMux := http.NewServeMux()
	httpapi.NewHandlerSet(httpapi.Options{Logger: logger, Readiness: receiver}).Register(opsMux)
	opsServer := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort), Handler: opsMux}
	go func() {
		logger.Info("logger ops server listening", logging.Int("port", int(cfg.HTTPPort)))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("logger ops server terminated", logging.Error(err))
		}
	}()
	defer opsServer.Close()

	if err := receiver.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("log receiver terminated", logging.Error(err))
	}
}
