// Package dashboard implements the operator WebSocket feed every robot and
// screen process exposes at /dashboard/ws: a live view of ring events -
// token circulation, order completion/cancellation, robot join/leave -
// built on the teacher's Client{conn, send chan []byte} broadcast-loop
// pattern from main.go, with dashboard clients regulated by a token-bucket
// bandwidth budget (internal/networking) and HMAC-authenticated upgrades
// (internal/auth), exactly the teacher's websocket_auth.go flow.
package dashboard

import (
	"time"

	"icering/internal/logging"
	"icering/internal/networking"
	"icering/internal/pool"
	"icering/internal/rwlock"
)

// broadcastWorkers sizes the pool that fans a published event out to
// connected clients; small on purpose, since dashboard fan-out is bounded
// by operator connection count, not ring throughput.
const broadcastWorkers = 4

// Config configures a Hub.
type Config struct {
	// AdminSecret is the HMAC shared secret dashboard clients must present
	// a signed token for. An empty secret disables authentication - every
	// upgrade is accepted - which is only acceptable for local development.
	AdminSecret string

	// BandwidthLimitBytesPerSecond caps each dashboard client's outbound
	// throughput; zero falls back to networking.DefaultBandwidthLimitBytesPerSecond.
	BandwidthLimitBytesPerSecond float64

	Logger *logging.Logger
}

// Hub fans ring events out to every connected dashboard client, the same
// broadcast-to-a-client-set shape as the teacher's Broker, scoped down to
// one process's events instead of a whole match's world state. The client
// set is guarded by an internal/rwlock.RWLock rather than sync.RWMutex so a
// steady trickle of event publishes (readers) cannot starve out a client
// registering or disconnecting (a writer).
type Hub struct {
	mu      *rwlock.RWLock
	clients map[*Client]bool

	broadcast *pool.Pool
	bandwidth *networking.BandwidthRegulator
	tiers     *TierManager
	auth      *dashboardAuthenticator
	logger    *logging.Logger
}

// NewHub constructs a Hub from Config.
func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	limit := cfg.BandwidthLimitBytesPerSecond
	if limit <= 0 {
		limit = networking.DefaultBandwidthLimitBytesPerSecond
	}
	return &Hub{
		mu:        rwlock.New(),
		clients:   make(map[*Client]bool),
		broadcast: pool.New(broadcastWorkers),
		bandwidth: networking.NewBandwidthRegulator(limit, time.Now),
		tiers:     NewTierManager(),
		auth:      newDashboardAuthenticator(cfg.AdminSecret),
		logger:    logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) deregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.bandwidth.Forget(c.id)
}

// PublishRingEvent fans an event out to every subscribed client whose
// minimum tier accepts it, charging each delivery against that client's
// bandwidth budget so one slow dashboard connection can never block the
// ring's own event loop: a client over budget simply misses the frame.
// Deliveries run on the broadcast pool so one blocked client's delivery
// attempt cannot delay another's. Satisfies a structural DashboardPublisher
// interface defined by callers (internal/ring, internal/screensvc) without
// either package importing this one.
func (h *Hub) PublishRingEvent(kind string, fields map[string]any) error {
	event := newEvent(kind, fields)
	payload, err := event.marshal()
	if err != nil {
		return err
	}
	tier := h.tiers.Classify(kind)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if tier > c.verbosity {
			continue
		}
		client := c
		h.broadcast.Execute(func() { h.deliver(client, payload) })
	}
	return nil
}

func (h *Hub) deliver(c *Client, payload []byte) {
	if !h.bandwidth.Allow(c.id, len(payload)) {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("dashboard client buffer full, dropping frame", logging.String("client_id", c.id))
	}
}

// ClientCount reports how many dashboard clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
