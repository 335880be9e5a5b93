// Package screensvc implements a screen: it reads a stream of client orders,
// validates each one's card with the gateway, and hands valid orders to a
// robot; separately it listens for ConfirmOrder/CancelOrder notifications
// from robots and settles the corresponding charge with the gateway.
package screensvc

import (
	"fmt"
	"net"
	"sync"
	"time"

	"icering/internal/logging"
)

// Config configures a Screen.
type Config struct {
	ID         uint16
	RobotCount uint16

	GatewayPort             uint16
	ScreenStartingPort      uint16
	RobotScreenStartingPort uint16

	// Dashboard, if set, receives a PublishRingEvent call for every order
	// validated, intake-accepted, confirmed, or cancelled at this screen.
	Dashboard DashboardPublisher

	Logger *logging.Logger
}

// DashboardPublisher is the subset of internal/dashboard.Hub the screen
// needs, defined here (mirroring internal/ring.DashboardPublisher) so
// screensvc can depend on the interface without importing internal/dashboard.
type DashboardPublisher interface {
	PublishRingEvent(kind string, fields map[string]any) error
}

// Screen validates and routes orders placed at one storefront.
type Screen struct {
	cfg    Config
	logger *logging.Logger

	dashboard DashboardPublisher

	startupMu  sync.Mutex
	startupErr error
	startedAt  time.Time
}

// publishDashboard fans an event out to the dashboard Hub, if one is
// configured. A Screen run without a dashboard behaves identically to one
// with a dashboard attached.
func (s *Screen) publishDashboard(kind string, fields map[string]any) {
	if s.dashboard == nil {
		return
	}
	if err := s.dashboard.PublishRingEvent(kind, fields); err != nil {
		s.logger.Warn("dashboard: failed to publish event", logging.String("kind", kind), logging.Error(err))
	}
}

// StartupError reports why the screen failed to bind its listener, if it
// did. Satisfies httpapi.ReadinessProvider.
func (s *Screen) StartupError() error {
	s.startupMu.Lock()
	defer s.startupMu.Unlock()
	return s.startupErr
}

// Uptime reports how long this screen has been running. Satisfies
// httpapi.ReadinessProvider.
func (s *Screen) Uptime() time.Duration {
	s.startupMu.Lock()
	startedAt := s.startedAt
	s.startupMu.Unlock()
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}

func (s *Screen) setStartupErr(err error) {
	s.startupMu.Lock()
	s.startupErr = err
	s.startupMu.Unlock()
}

func (s *Screen) markStarted() {
	s.startupMu.Lock()
	s.startedAt = time.Now()
	s.startupMu.Unlock()
}

// New returns a screen bound to the given configuration.
func New(cfg Config) *Screen {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &Screen{cfg: cfg, logger: logger.With(logging.Int("screen_id", int(cfg.ID))), dashboard: cfg.Dashboard}
}

func (s *Screen) gatewayAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.cfg.GatewayPort)
}

func (s *Screen) dialGateway() (net.Conn, error) {
	return net.Dial("tcp", s.gatewayAddr())
}

func robotIntakeAddr(basePort, id uint16) string {
	return fmt.Sprintf("127.0.0.1:%d", basePort+id)
}

func screenListenAddr(basePort, id uint16) string {
	return fmt.Sprintf("127.0.0.1:%d", basePort+id)
}
