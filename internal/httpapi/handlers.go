// Package httpapi exposes the operational HTTP surface every ring process
// shares: liveness, readiness, and Prometheus-text metrics.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"icering/internal/flavour"
	"icering/internal/logging"
)

// AuditSnapshotter triggers an out-of-band audit snapshot on demand.
type AuditSnapshotter interface {
	SnapshotNow(ctx context.Context) (string, error)
}

// ReadinessProvider exposes process state required for readiness checks.
type ReadinessProvider interface {
	StartupError() error
	Uptime() time.Duration
}

// RingMetrics exposes ring-health counters for the /metrics endpoint.
type RingMetrics interface {
	ServingsRemaining() map[flavour.Flavour]uint
	TokensObserved() uint64
	RobotsConnected() int
}

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures a HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Metrics     RingMetrics
	Audit       AuditSnapshotter
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles a process's operational HTTP handlers.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	metrics     RingMetrics
	audit       AuditSnapshotter
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet from Options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches every handler to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	if h.audit != nil {
		mux.HandleFunc("/admin/audit/snapshot", h.AuditSnapshotHandler())
	}
}

// AuditSnapshotHandler authorises and triggers an immediate audit snapshot.
func (h *HandlerSet) AuditSnapshotHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "audit_snapshot"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("audit snapshot denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("audit snapshot denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("audit snapshot denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		location, err := h.audit.SnapshotNow(r.Context())
		if err != nil {
			reqLogger.Error("audit snapshot trigger failed", logging.Error(err))
			http.Error(w, "failed to trigger audit snapshot", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("audit snapshot triggered")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

// LivenessHandler reports that the process is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports process readiness, surfacing any startup error.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus text exposition format describing ring health.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if h.metrics == nil {
			return
		}
		fmt.Fprintf(w, "# HELP icering_robots_connected Robots currently participating in the ring.\n")
		fmt.Fprintf(w, "# TYPE icering_robots_connected gauge\n")
		fmt.Fprintf(w, "icering_robots_connected %d\n", h.metrics.RobotsConnected())

		fmt.Fprintf(w, "# HELP icering_tokens_observed_total Tokens that have passed through this process.\n")
		fmt.Fprintf(w, "# TYPE icering_tokens_observed_total counter\n")
		fmt.Fprintf(w, "icering_tokens_observed_total %d\n", h.metrics.TokensObserved())

		servings := h.metrics.ServingsRemaining()
		if len(servings) > 0 {
			fmt.Fprintf(w, "# HELP icering_servings_remaining Remaining servings per flavour.\n")
			fmt.Fprintf(w, "# TYPE icering_servings_remaining gauge\n")
			for f, n := range servings {
				fmt.Fprintf(w, "icering_servings_remaining{flavour=%q} %d\n", f.String(), n)
			}
		}
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
