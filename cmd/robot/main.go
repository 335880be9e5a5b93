// Command robot runs one ring robot: it serves orders in rotation with its
// peers, passing the order token and five flavour tokens around the ring.
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
	"icering/internal/ring"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: robot <id>")
		os.Exit(1)
	}
	id, err := strconv.ParseUint(os.Args[1], 10, 16)
	if err != nil {
		fmt.Fprintln(os.Stderr, "id needs to be a number")
		os.Exit(1)
	}

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

	auditDir := ""
	if cfg.AuditEnabled {
		auditDir = cfg.AuditDir
	}

	var hub *dashboard.Hub
	if cfg.DashboardEnabled {
		hub = dashboard.NewHub(dashboard.Config{
			AdminSecret: cfg.DashboardAdminToken,
			Logger:      logger,
		})
	}

	ringCfg := ring.Config{
		ID:                      uint16(id),
		RobotCount:              cfg.RobotCount,
		ScreenCount:             cfg.ScreenCount,
		StartingIcecream:        cfg.StartingIcecream,
		RobotStartingPort:       cfg.RobotStartingPort,
		RobotScreenStartingPort: cfg.RobotScreenStartingPort,
		ScreenStartingPort:      cfg.ScreenStartingPort,
		AuditDir:                auditDir,
		Logger:                  logger,
	}
	if hub != nil {
		ringCfg.Dashboard = hub
	}
	robot := ring.New(ringCfg)

	opsOptions := httpapi.Options{
		Logger:     logger,
		Readiness:  robot,
		Metrics:    robot,
		AdminToken: cfg.DashboardAdminToken,
	}
	if cfg.AuditEnabled {
		opsOptions.Audit = robot
	}
	opsMux := http.NewServeMux()
	httpapi.NewHandlerSet(opsOptions).Register(opsMux)
	opsServer := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort+uint16(id)), Handler: opsMux}
	go func() {
		logger.Info("robot ops server listening", logging.Int("port", int(cfg.HTTPPort)+int(id)))
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("robot ops server terminated", logging.Error(err))
		}
	}()
	defer opsServer.Close()

	if hub != nil {
		dashboardMux := http.NewServeMux()
		dashboardMux.HandleFunc("/dashboard/ws", hub.ServeWS)
		dashboardServer := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", cfg.DashboardPort+uint16(id)), Handler: dashboardMux}
		go func() {
			logger.Info("robot dashboard server listening", logging.Int("port", int(cfg.DashboardPort)+int(id)))
			if err := dashboardServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("robot dashboard server terminated", logging.Error(err))
			}
		}()
		defer dashboardServer.Close()
	}

	if err := robot.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("robot terminated", logging.Error(err))
	}
}
