// Command screen runs one storefront screen process: it validates orders
// from an order file against the gateway, hands valid ones to a robot, and
// listens for order outcomes to settle the charge.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"icering/internal/config"
	"icering/internal/dashboard"
	"icering/internal/httpapi"
	"icering/internal/logging"
	"icering/internal/screensvc"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: screen <id> <path_to_orders_file>")
		os.Exit(1)
	}
	id, err := strconv.ParseUint(os.Args[1], 10, 16)
	if err != nil {
		fmt.Fprintln(os.Stderr, "id needs to be a number")
		os.Exit(1)
	}
	ordersPath := os.Args[2]

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

	var hub *dashboard.Hub
	if cfg.DashboardEnabled {
		hub = dashboard.NewHub(dashboard.Config{
			AdminSecret: cfg.DashboardAdminToken,
			Logger:      logger,
		})
	}

	screenCfg := screensvc.Config{
		ID:                      uint16(id),
		RobotCount:              cfg.RobotCount,
		GatewayPort:             cfg.GatewayPort,
		ScreenStartingPort:      cfg.ScreenStartingPort,
		RobotScreenStartingPort: cfg.RobotScreenStartingPort,
		Logger:                  logger,
	}
	if hub != nil {
		screenCfg.Dashboard = hub
	}
	screen := screensvc.New(screenCfg)

	opsMux := http.NewServeMux()
	httpapi.NewHandlerSet(httpapi.Options{Logger: logger, Readiness: screen}).Register(opsMux)
	opsServer := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort+uint16(id)), Handler: opsMux}
	go func() {
		logger.Info("screen ops server listening", logging.Int("port", int(cfg.HTTPPort)+int(id)))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("screen ops server terminated", logging.Error(err))
		}
	}()
	defer opsServer.Close()

	if hub != nil {
		dashboardMux := http.NewServeMux()
		dashboardMux.HandleFunc("/dashboard/ws", hub.ServeWS)
		dashboardServer := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", cfg.DashboardPort+uint16(id)), Handler: dashboardMux}
		go func() {
			logger.Info("screen dashboard server listening", logging.Int("port", int(cfg.DashboardPort)+int(id)))
			if err := dashboardServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("screen dashboard server terminated", logging.Error(err))
			}
		}()
		defer dashboardServer.Close()
	}

	if err := screen.Run(ctx, ordersPath); err != nil && ctx.Err() == nil {
		logger.Fatal("screen terminated", logging.Error(err))
	}
}
