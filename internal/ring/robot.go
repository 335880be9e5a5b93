// Package ring implements the token-ring orchestrator: the per-robot event
// loop that passes one OrderToken and five FlavourTokens around a logical
// ring of peers, serving orders and healing around crashed nodes.
package ring

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"icering/internal/auditlog"
	"icering/internal/flavour"
	"icering/internal/logging"
	"icering/internal/orders"
	"icering/internal/protocol"
	"icering/internal/tokens"
)

const (
	dialNextTimeout   = 200 * time.Millisecond
	dialNextBackoff   = 50 * time.Millisecond
	dialScreenTimeout = 1 * time.Second

	// auditSnapshotInterval is how often a robot persists a full ring-state
	// snapshot to its audit trail when auditing is enabled.
	auditSnapshotInterval = 30 * time.Second
)

// Config configures one robot's place in the ring and its network addresses.
type Config struct {
	ID               uint16
	RobotCount       uint16
	ScreenCount      uint16
	StartingIcecream uint

	RobotStartingPort       uint16
	RobotScreenStartingPort uint16
	ScreenStartingPort      uint16

	// AuditDir, when non-empty, turns on token-custody audit logging for
	// this robot: every token receipt/forward/ack and order outcome is
	// persisted to a bundle under this directory, alongside periodic
	// ring-state snapshots.
	AuditDir string

	// Dashboard, if set, receives a PublishRingEvent call at the same
	// instrumentation points as the audit trail, feeding the operator
	// WebSocket feed. Optional - a nil Dashboard disables live event
	// publishing without affecting ring correctness.
	Dashboard DashboardPublisher

	Logger *logging.Logger
}

// DashboardPublisher is the subset of internal/dashboard.Hub the ring needs.
// Defined here rather than in internal/dashboard so ring can depend on the
// interface without either package importing the other - dashboard.Hub
// satisfies this structurally, and only cmd/robot wires the concrete value
// in, the same pattern httpapi.AuditSnapshotter uses for the ring/httpapi
// relationship.
type DashboardPublisher interface {
	PublishRingEvent(kind string, fields map[string]any) error
}

// Robot is a single node in the ring. Every field below this comment is
// owned exclusively by the goroutine running loop; nothing else may touch
// them. Only the atomics and inventory cache are safe for concurrent reads
// from httpapi/dashboard.
type Robot struct {
	cfg    Config
	logger *logging.Logger

	events chan event
	closed chan struct{}

	startupMu  sync.Mutex
	startupErr error
	startedAt  time.Time

	bootstrapped atomic.Bool
	synthesized  bool

	prevConn net.Conn
	prevID   *uint16
	prevGen  uint64

	nextConn net.Conn
	nextID   *uint16
	nextGen  uint64

	newOrders      []orders.Order
	currentOrder   *orders.Order
	servingFlavour bool
	pendingServe   *pendingServe

	tokenBox *tokens.TokenBox

	tokensObserved uint64
	inventory      *inventoryCache

	audit     *auditlog.Recorder
	dashboard DashboardPublisher
}

// pendingServe tracks the one in-flight timed serve, so handleFlavourServed
// can forward the right token and, only if it genuinely arrived from prev,
// ack it with EndOfUse once the delay elapses.
type pendingServe struct {
	token        tokens.FlavourToken
	sendEndOfUse bool
}

// New constructs a robot. It does not bind any sockets; call Run for that.
func New(cfg Config) *Robot {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}
	logger = logger.With(logging.Int("robot_id", int(cfg.ID)))

	var audit *auditlog.Recorder
	if cfg.AuditDir != "" {
		rec, err := auditlog.NewRecorder(cfg.AuditDir, cfg.ID, nil, logger)
		if err != nil {
			logger.Warn("auditlog: failed to open audit bundle, continuing without one", logging.Error(err))
		} else {
			audit = rec
		}
	}

	return &Robot{
		cfg:       cfg,
		logger:    logger,
		events:    make(chan event, 256),
		closed:    make(chan struct{}),
		tokenBox:  tokens.NewTokenBox(),
		inventory: newInventoryCache(cfg.StartingIcecream),
		audit:     audit,
		dashboard: cfg.Dashboard,
	}
}

// publishDashboard fans a ring event out to the dashboard Hub, if one is
// configured. Mirrors recordAudit's nil-safety: a robot run without a
// dashboard behaves identically to one with a dashboard attached.
func (r *Robot) publishDashboard(kind string, fields map[string]any) {
	if r.dashboard == nil {
		return
	}
	if err := r.dashboard.PublishRingEvent(kind, fields); err != nil {
		r.logger.Warn("dashboard: failed to publish event", logging.String("kind", kind), logging.Error(err))
	}
}

// Run binds this robot's peer and order-intake listeners, then drives the
// event loop until ctx is cancelled. It blocks for the lifetime of the
// robot; callers typically run it from cmd/robot's main goroutine.
func (r *Robot) Run(ctx context.Context) error {
	peerAddr := fmt.Sprintf("127.0.0.1:%d", r.cfg.RobotStartingPort+r.cfg.ID)
	peerListener, err := net.Listen("tcp", peerAddr)
	if err != nil {
		err = fmt.Errorf("ring: listen on peer port %s: %w", peerAddr, err)
		r.setStartupErr(err)
		return err
	}
	orderAddr := fmt.Sprintf("127.0.0.1:%d", r.cfg.RobotScreenStartingPort+r.cfg.ID)
	orderListener, err := net.Listen("tcp", orderAddr)
	if err != nil {
		peerListener.Close()
		err = fmt.Errorf("ring: listen on order-intake port %s: %w", orderAddr, err)
		r.setStartupErr(err)
		return err
	}

	r.startupMu.Lock()
	r.startedAt = time.Now()
	r.startupMu.Unlock()

	r.logger.Info("robot listening",
		logging.String("peer_addr", peerAddr),
		logging.String("order_addr", orderAddr))

	go func() {
		<-ctx.Done()
		peerListener.Close()
		orderListener.Close()
		close(r.closed)
		if r.audit != nil {
			if err := r.audit.Close(); err != nil {
				r.logger.Warn("auditlog: close failed", logging.Error(err))
			}
		}
	}()

	go r.acceptPeers(peerListener)
	go r.acceptOrders(orderListener)
	if r.audit != nil {
		go r.runAuditSnapshotLoop(ctx)
	}

	r.postEvent(event{kind: evtBootstrap})

	r.loop(ctx)
	return ctx.Err()
}

// runAuditSnapshotLoop periodically persists a full ring-state snapshot to
// the audit trail. It only ever reads state through the same thread-safe
// accessors httpapi's /metrics uses, so it never touches event-loop-owned
// fields directly.
func (r *Robot) runAuditSnapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(auditSnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SnapshotNow(ctx); err != nil {
				r.logger.Warn("auditlog: periodic snapshot failed", logging.Error(err))
			}
		}
	}
}

func (r *Robot) setStartupErr(err error) {
	r.startupMu.Lock()
	r.startupErr = err
	r.startupMu.Unlock()
}

// postEvent delivers ev to the loop, whether called from the loop goroutine
// itself (self-triggered healing, the serving-delay timer) or from an
// accept/reader goroutine. It never blocks past shutdown.
func (r *Robot) postEvent(ev event) {
	select {
	case r.events <- ev:
	case <-r.closed:
	}
}

func (r *Robot) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.handle(ctx, ev)
		}
	}
}

func (r *Robot) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evtBootstrap:
		r.handleBootstrap(ctx)
	case evtConnect:
		r.handleConnect(ev.conn)
	case evtFindNext:
		if ev.gen != r.nextGen {
			return
		}
		r.handleFindNext(ctx)
	case evtCheckTokenBox:
		// Unlike FindNext and EndOfUse, CheckTokenBox is not fenced by gen:
		// installNext always runs first and bumps nextGen before this event
		// is handled, so a generation check here would reject re-release on
		// every single heal. Re-release is idempotent against an empty
		// tokenBox, so processing it unconditionally is safe even if a stale
		// trigger from an already-healed connection arrives late.
		r.handleCheckTokenBox()
	case evtRecvOrderToken:
		if ev.fromPrev && ev.gen != r.prevGen {
			return
		}
		r.handleRecvOrderToken(ev.orderToken, ev.fromPrev)
	case evtRecvFlavourToken:
		if ev.fromPrev && ev.gen != r.prevGen {
			return
		}
		r.handleRecvFlavourToken(ev.flavourToken, ev.fromPrev)
	case evtEndOfUse:
		if ev.gen != r.nextGen {
			return
		}
		r.handleEndOfUse(ev.tokenID)
	case evtRecvOrder:
		r.newOrders = append(r.newOrders, ev.order)
	case evtFlavourServed:
		r.handleFlavourServed(ev.flavourID)
	}
}

func (r *Robot) acceptPeers(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		r.postEvent(event{kind: evtConnect, conn: conn})
	}
}

func (r *Robot) acceptOrders(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go r.readOrderIntake(conn)
	}
}

func (r *Robot) readOrderIntake(conn net.Conn) {
	defer conn.Close()
	reader := protocol.NewFrameReader(conn)
	for {
		var msg protocol.RobotMsg
		if err := reader.ReadFrame(&msg); err != nil {
			return
		}
		if msg.Kind() != "RecvOrder" {
			r.logger.Warn("unexpected message on order-intake stream", logging.String("kind", msg.Kind()))
			continue
		}
		r.postEvent(event{kind: evtRecvOrder, order: msg.Order()})
	}
}

// runPrevReader reads tokens prev forwards to us. Per spec.md §4.1, a dead
// prev needs no healing action here: the next Connect from a replacement
// predecessor simply installs over it.
func (r *Robot) runPrevReader(conn net.Conn, gen uint64) {
	reader := protocol.NewFrameReader(conn)
	for {
		var msg protocol.RobotMsg
		if err := reader.ReadFrame(&msg); err != nil {
			return
		}
		switch msg.Kind() {
		case "RecvOrderToken":
			r.postEvent(event{kind: evtRecvOrderToken, orderToken: msg.OrderToken(), gen: gen, fromPrev: true})
		case "RecvFlavourToken":
			r.postEvent(event{kind: evtRecvFlavourToken, flavourToken: msg.FlavourToken(), gen: gen, fromPrev: true})
		default:
			r.logger.Warn("unexpected message from prev", logging.String("kind", msg.Kind()))
		}
	}
}

// runNextReader reads the acknowledgements next writes back on the same
// connection we forward tokens over: EndOfUse, or Disconnect just before
// next closes cleanly. A plain EOF (no Disconnect) means next crashed, so
// both FindNext and CheckTokenBox fire; an explicit Disconnect only needs
// FindNext, since next is replacing itself deliberately, not losing tokens.
func (r *Robot) runNextReader(conn net.Conn, gen uint64) {
	reader := protocol.NewFrameReader(conn)
	for {
		var msg protocol.RobotMsg
		err := reader.ReadFrame(&msg)
		if err != nil {
			r.postEvent(event{kind: evtFindNext, gen: gen})
			r.postEvent(event{kind: evtCheckTokenBox, gen: gen})
			return
		}
		switch msg.Kind() {
		case "EndOfUse":
			r.postEvent(event{kind: evtEndOfUse, tokenID: msg.TokenID(), gen: gen})
		case "Disconnect":
			r.postEvent(event{kind: evtFindNext, gen: gen})
			return
		default:
			r.logger.Warn("unexpected message from next", logging.String("kind", msg.Kind()))
		}
	}
}

func (r *Robot) handleBootstrap(ctx context.Context) {
	conn, id := r.dialNext(ctx)
	if conn == nil {
		return
	}
	alone := id == r.cfg.ID
	r.installNext(conn, id)
	if alone && !r.synthesized {
		r.synthesized = true
		r.synthesizeTokens()
	}
}

func (r *Robot) handleFindNext(ctx context.Context) {
	conn, id := r.dialNext(ctx)
	if conn == nil {
		return
	}
	r.installNext(conn, id)
}

// dialNext implements FindNext: try offsets 1..=N in order, the first
// successful connection wins (offset N always dials self, the IsAlone
// case). If a full pass fails - likely because peers haven't bound their
// listeners yet at cluster startup - it retries after a short backoff; the
// ring's healing protocol depends on this eventually succeeding.
func (r *Robot) dialNext(ctx context.Context) (net.Conn, uint16) {
	for {
		for offset := uint16(1); offset <= r.cfg.RobotCount; offset++ {
			select {
			case <-ctx.Done():
				return nil, 0
			default:
			}
			id := (r.cfg.ID + offset) % r.cfg.RobotCount
			addr := fmt.Sprintf("127.0.0.1:%d", r.cfg.RobotStartingPort+id)
			conn, err := net.DialTimeout("tcp", addr, dialNextTimeout)
			if err == nil {
				return conn, id
			}
		}
		select {
		case <-ctx.Done():
			return nil, 0
		case <-time.After(dialNextBackoff):
		}
	}
}

func (r *Robot) installNext(conn net.Conn, id uint16) {
	if r.nextConn != nil {
		r.nextConn.Close()
	}
	r.nextGen++
	r.nextConn = conn
	r.nextID = &id
	r.bootstrapped.Store(true)
	gen := r.nextGen
	r.logger.Info("next connected", logging.Int("next_id", int(id)))
	r.publishDashboard("robot_joined", map[string]any{"role": "next", "peer_id": id})
	go r.runNextReader(conn, gen)
}

func (r *Robot) handleConnect(conn net.Conn) {
	if r.prevConn != nil {
		_ = protocol.WriteFrame(r.prevConn, protocol.Disconnect())
		r.prevConn.Close()
	}
	r.prevGen++
	r.prevConn = conn
	gen := r.prevGen
	r.logger.Info("prev connected")
	r.publishDashboard("robot_joined", map[string]any{"role": "prev"})
	go r.runPrevReader(conn, gen)
}

// synthesizeTokens is the once-per-cluster-lifetime bootstrap for a robot
// that finds itself alone: it self-sends one OrderToken and one
// FlavourToken per flavour, each with StartingIcecream servings, through
// the normal receipt path so processing and forwarding are identical to
// the steady-state circulation.
func (r *Robot) synthesizeTokens() {
	r.logger.Info("alone in ring, synthesising tokens")
	r.handleRecvOrderToken(tokens.NewOrderToken(r.cfg.ID), false)
	for _, f := range flavour.All() {
		r.handleRecvFlavourToken(tokens.NewFlavourToken(r.cfg.ID, f, r.cfg.StartingIcecream), false)
	}
}

func (r *Robot) handleCheckTokenBox() {
	if token, ok := r.tokenBox.TakeOrderToken(); ok {
		r.tokenBox.StashOrderToken(token)
		r.forwardOrderToken(token)
	}
	for _, token := range r.tokenBox.TakeFlavourTokens() {
		r.tokenBox.StashFlavourToken(token)
		r.forwardFlavourToken(token)
	}
}

func (r *Robot) handleEndOfUse(id tokens.ID) {
	if r.prevID != nil && r.nextID != nil && *r.prevID == *r.nextID {
		// Ring of size 1 or 2: EndOfUse can't be told apart from our own
		// self-loop, so the stash is kept rather than discarded early.
		return
	}
	if id.Kind == tokens.KindOrder {
		r.tokenBox.DiscardOrderToken()
	} else {
		r.tokenBox.DiscardFlavourToken(id.Flavour)
	}
}

// forwardOrderToken writes token to next and reports whether the write
// succeeded. Per the source's send_token, prev is only told EndOfUse once
// this succeeds - a failed forward must not make prev discard its backup
// copy of the token.
func (r *Robot) forwardOrderToken(token tokens.OrderToken) bool {
	if r.nextConn == nil {
		return false
	}
	if err := protocol.WriteFrame(r.nextConn, protocol.RecvOrderToken(token)); err != nil {
		r.logger.Warn("forward order token failed", logging.Error(err))
		r.triggerNextHealing()
		return false
	}
	r.recordAudit(auditlog.CustodyEvent{Kind: auditlog.EventTokenForwarded, TokenKind: "order"})
	return true
}

// forwardFlavourToken writes token to next and reports whether the write
// succeeded, for the same reason as forwardOrderToken.
func (r *Robot) forwardFlavourToken(token tokens.FlavourToken) bool {
	if r.nextConn == nil {
		return false
	}
	if err := protocol.WriteFrame(r.nextConn, protocol.RecvFlavourToken(token)); err != nil {
		r.logger.Warn("forward flavour token failed", logging.Error(err))
		r.triggerNextHealing()
		return false
	}
	servings := token.Servings()
	r.recordAudit(auditlog.CustodyEvent{
		Kind:      auditlog.EventTokenForwarded,
		TokenKind: "flavour",
		Flavour:   token.Flavour().String(),
		Servings:  &servings,
	})
	return true
}

func (r *Robot) sendEndOfUse(id tokens.ID) {
	if r.prevConn == nil {
		return
	}
	if err := protocol.WriteFrame(r.prevConn, protocol.EndOfUse(id)); err != nil {
		r.logger.Warn("send EndOfUse to prev failed", logging.Error(err))
		return
	}
	r.recordAudit(auditlog.CustodyEvent{Kind: auditlog.EventEndOfUse, TokenKind: id.String()})
}

// triggerNextHealing posts FindNext, tagged with the generation current
// right now so a second trigger racing in from the dying connection's
// reader is recognised as stale once the first has already healed it, and
// CheckTokenBox, which runs unconditionally - see the evtCheckTokenBox case
// in handle.
func (r *Robot) triggerNextHealing() {
	r.recordAudit(auditlog.CustodyEvent{Kind: auditlog.EventHealingTriggered})
	r.publishDashboard("robot_left", map[string]any{"role": "next"})
	gen := r.nextGen
	r.postEvent(event{kind: evtFindNext, gen: gen})
	r.postEvent(event{kind: evtCheckTokenBox, gen: gen})
}

// recordAudit fills in the robot id, publishes ev to the dashboard and ships
// it to the audit trail, each only if configured. A failure to persist an
// audit event never affects ring behaviour - it is only logged.
func (r *Robot) recordAudit(ev auditlog.CustodyEvent) {
	ev.RobotID = r.cfg.ID
	r.publishDashboard(string(ev.Kind), map[string]any{"event": ev})
	if r.audit == nil {
		return
	}
	if err := r.audit.RecordEvent(ev); err != nil {
		r.logger.Warn("auditlog: record event failed", logging.Error(err))
	}
}
