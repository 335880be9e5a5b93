package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultRobotCount is how many robots form the ring when ICERING_ROBOT_COUNT is unset.
	DefaultRobotCount = 3
	// DefaultScreenCount is how many screens accept orders when ICERING_SCREEN_COUNT is unset.
	DefaultScreenCount = 2
	// DefaultStartingIcecream is the initial servings of each flavour per spec.md.
	DefaultStartingIcecream = 10

	// DefaultGatewayPort is the fixed payment gateway port.
	DefaultGatewayPort = 9000
	// DefaultScreenStartingPort is the base port for screen confirmation listeners.
	DefaultScreenStartingPort = 9100
	// DefaultRobotStartingPort is the base port for robot-to-robot ring traffic.
	DefaultRobotStartingPort = 9200
	// DefaultRobotScreenStartingPort is the base port for robot order intake.
	DefaultRobotScreenStartingPort = 9300

	// DefaultLogLevel controls verbosity for every process's structured logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "icering.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultDashboardPort is the base port robots and screens serve /dashboard/ws on.
	DefaultDashboardPort = 9400
	// DefaultHTTPPort is the base port /livez, /readyz and /metrics are served on.
	DefaultHTTPPort = 9500
	// DefaultLogSinkPort is the UDP port the logger process listens on.
	DefaultLogSinkPort = 9600
)

// Config captures all runtime tunables for the ring processes.
type Config struct {
	RobotCount       uint16
	ScreenCount      uint16
	StartingIcecream uint

	GatewayPort             uint16
	ScreenStartingPort      uint16
	RobotStartingPort       uint16
	RobotScreenStartingPort uint16

	Logging LoggingConfig

	DashboardEnabled    bool
	DashboardPort       uint16
	DashboardAdminToken string

	AuditEnabled bool
	AuditDir     string

	HTTPPort    uint16
	LogSinkPort uint16
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the ring configuration from environment variables, applying
// sane defaults and returning a single combined error for every invalid
// override found.
func Load() (*Config, error) {
	cfg := &Config{
		RobotCount:       DefaultRobotCount,
		ScreenCount:      DefaultScreenCount,
		StartingIcecream: DefaultStartingIcecream,

		GatewayPort:             DefaultGatewayPort,
		ScreenStartingPort:      DefaultScreenStartingPort,
		RobotStartingPort:       DefaultRobotStartingPort,
		RobotScreenStartingPort: DefaultRobotScreenStartingPort,

		Logging: LoggingConfig{
			Level:      getString("ICERING_LOG_LEVEL", DefaultLogLevel),
			Path:       getString("ICERING_LOG_PATH", DefaultLogPath),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},

		DashboardPort:       DefaultDashboardPort,
		DashboardAdminToken: strings.TrimSpace(os.Getenv("ICERING_DASHBOARD_ADMIN_TOKEN")),

		AuditDir: strings.TrimSpace(os.Getenv("ICERING_AUDIT_DIR")),

		HTTPPort:    DefaultHTTPPort,
		LogSinkPort: DefaultLogSinkPort,
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("ICERING_ROBOT_COUNT")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || value == 0 {
			problems = append(problems, fmt.Sprintf("ICERING_ROBOT_COUNT must be a positive integer, got %q", raw))
		} else {
			cfg.RobotCount = uint16(value)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ICERING_SCREEN_COUNT")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 16)
		if err != nil || value == 0 {
			problems = append(problems, fmt.Sprintf("ICERING_SCREEN_COUNT must be a positive integer, got %q", raw))
		} else {
			cfg.ScreenCount = uint16(value)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("STARTING_ICECREAM")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("STARTING_ICECREAM must be a non-negative integer, got %q", raw))
		} else {
			cfg.StartingIcecream = uint(value)
		}
	}

	cfg.GatewayPort = parsePort(&problems, "GATEWAY_PORT", cfg.GatewayPort)
	cfg.ScreenStartingPort = parsePort(&problems, "SCREEN_STARTING_PORT", cfg.ScreenStartingPort)
	cfg.RobotStartingPort = parsePort(&problems, "ROBOT_STARTING_PORT", cfg.RobotStartingPort)
	cfg.RobotScreenStartingPort = parsePort(&problems, "ROBOT_SCREEN_STARTING_PORT", cfg.RobotScreenStartingPort)
	cfg.DashboardPort = parsePort(&problems, "ICERING_DASHBOARD_PORT", cfg.DashboardPort)
	cfg.HTTPPort = parsePort(&problems, "ICERING_HTTP_PORT", cfg.HTTPPort)
	cfg.LogSinkPort = parsePort(&problems, "ICERING_LOG_SINK_PORT", cfg.LogSinkPort)

	if raw := strings.TrimSpace(os.Getenv("ICERING_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("ICERING_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ICERING_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("ICERING_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ICERING_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("ICERING_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ICERING_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ICERING_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ICERING_DASHBOARD_ENABLED")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ICERING_DASHBOARD_ENABLED must be a boolean value, got %q", raw))
		} else {
			cfg.DashboardEnabled = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ICERING_AUDIT_ENABLED")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ICERING_AUDIT_ENABLED must be a boolean value, got %q", raw))
		} else {
			cfg.AuditEnabled = value
		}
	}

	if cfg.AuditEnabled && cfg.AuditDir == "" {
		cfg.AuditDir = "audit"
	}

	if cfg.DashboardEnabled && cfg.DashboardAdminToken == "" {
		problems = append(problems, "ICERING_DASHBOARD_ADMIN_TOKEN must be set when ICERING_DASHBOARD_ENABLED is true")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func parsePort(problems *[]string, key string, fallback uint16) uint16 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || value == 0 {
		*problems = append(*problems, fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
		return fallback
	}
	return uint16(value)
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
