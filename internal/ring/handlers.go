package ring

import (
	"sync/atomic"
	"time"

	"icering/internal/auditlog"
	"icering/internal/flavour"
	"icering/internal/logging"
	"icering/internal/protocol"
	"icering/internal/tokens"
)

// handleRecvOrderToken implements the token reception protocol (spec.md
// §4.1) for the order token: record provenance, apply order processing,
// stash, forward, and - only for a genuine receipt from prev, never for a
// locally synthesised or resent token - ack with EndOfUse.
func (r *Robot) handleRecvOrderToken(token tokens.OrderToken, fromPrev bool) {
	if fromPrev {
		prevID := token.Sender()
		r.prevID = &prevID
		atomic.AddUint64(&r.tokensObserved, 1)
		r.recordAudit(auditlog.CustodyEvent{Kind: auditlog.EventTokenReceived, TokenKind: "order", PeerID: &prevID})
	}
	token.Mark(r.cfg.ID)

	r.processOrderToken(&token)

	r.tokenBox.StashOrderToken(token)
	if r.forwardOrderToken(token) && fromPrev {
		r.sendEndOfUse(tokens.OrderTokenID)
	}
}

func (r *Robot) processOrderToken(token *tokens.OrderToken) {
	if len(r.newOrders) > 0 {
		token.UploadNewOrders(r.newOrders...)
		r.newOrders = nil
	}

	if !r.servingFlavour && r.currentOrder != nil && r.currentOrder.IsCompleted() {
		order := *r.currentOrder
		r.currentOrder = nil
		r.recordAudit(auditlog.CustodyEvent{Kind: auditlog.EventOrderConfirmed, OrderID: order.ID.String()})
		go r.notifyScreen(protocol.ConfirmOrder(order.ID))
	}

	if r.currentOrder == nil {
		r.downloadCurrentOrder(token)
	}
}

// downloadCurrentOrder implements spec.md §4.1's claim order: discard our
// own stale claim, then steal the first order held by an intermediate (a
// robot between us and next - necessarily crashed, since a live robot
// would still be holding it), falling back to the queue head.
func (r *Robot) downloadCurrentOrder(token *tokens.OrderToken) {
	token.RemoveInProgress(r.cfg.ID)

	for _, id := range r.intermediateIDs() {
		if order, ok := token.RemoveInProgress(id); ok {
			claimed := order.Clone()
			token.AddInProgress(r.cfg.ID, claimed)
			r.currentOrder = &claimed
			return
		}
	}

	if order, ok := token.NextOrder(); ok {
		token.AddInProgress(r.cfg.ID, order)
		r.currentOrder = &order
	}
}

// intermediateIDs returns the robot ids strictly between self and next
// along ring order - the ids a crashed robot's in-progress order could be
// stranded under. If next is unknown, every other id in the ring qualifies.
func (r *Robot) intermediateIDs() []uint16 {
	next := r.cfg.ID
	if r.nextID != nil {
		next = *r.nextID
	}
	var ids []uint16
	for offset := uint16(1); offset <= r.cfg.RobotCount; offset++ {
		id := (r.cfg.ID + offset) % r.cfg.RobotCount
		if id == next {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// handleRecvFlavourToken implements the FlavourToken half of the reception
// protocol, including the non-preemptive timed serve: serving_flavour is
// set synchronously so a concurrent OrderToken can't see the order flip to
// completed mid-serve, and the token is only forwarded (and only then
// acked with EndOfUse) once the serving delay elapses.
func (r *Robot) handleRecvFlavourToken(token tokens.FlavourToken, fromPrev bool) {
	if fromPrev {
		prevID := token.Sender()
		r.prevID = &prevID
		atomic.AddUint64(&r.tokensObserved, 1)
		r.recordAudit(auditlog.CustodyEvent{
			Kind:      auditlog.EventTokenReceived,
			TokenKind: "flavour",
			Flavour:   token.Flavour().String(),
			PeerID:    &prevID,
		})
	}
	token.Mark(r.cfg.ID)

	served, duration := r.applyFlavourToken(&token)
	r.inventory.set(token.Flavour(), token.Servings())

	if served {
		// Stashed only at release (handleFlavourServed), mirroring the
		// source: a token mid non-preemptive serve is not yet forwarded, so
		// stashing it here too would give CheckTokenBox a second, stale copy
		// to re-release alongside the one handleFlavourServed eventually
		// forwards.
		r.pendingServe = &pendingServe{token: token, sendEndOfUse: fromPrev}
		f := token.Flavour()
		time.AfterFunc(time.Duration(duration)*time.Second, func() {
			r.postEvent(event{kind: evtFlavourServed, flavourID: f})
		})
		return
	}

	r.tokenBox.StashFlavourToken(token)
	if r.forwardFlavourToken(token) && fromPrev {
		r.sendEndOfUse(tokens.FlavourTokenID(token.Flavour()))
	}
}

// applyFlavourToken decides whether this token's flavour can serve the
// current order: reports whether a timed serve started, and for how many
// seconds (one second per serving taken, per the source's
// Duration::from_secs(servings)).
func (r *Robot) applyFlavourToken(token *tokens.FlavourToken) (served bool, duration uint) {
	if r.servingFlavour || r.currentOrder == nil {
		return false, 0
	}
	f := token.Flavour()
	needed, wants := r.currentOrder.Flavours[f]
	if !wants {
		return false, 0
	}
	if !token.HasEnough(needed) {
		r.cancelCurrentOrder()
		return false, 0
	}
	taken := token.Take(needed)
	r.currentOrder.Cross(f)
	r.servingFlavour = true
	return true, taken
}

func (r *Robot) cancelCurrentOrder() {
	if r.currentOrder == nil {
		return
	}
	order := *r.currentOrder
	r.currentOrder = nil
	r.recordAudit(auditlog.CustodyEvent{Kind: auditlog.EventOrderCancelled, OrderID: order.ID.String()})
	go r.notifyScreen(protocol.CancelOrder(order.ID))
}

func (r *Robot) handleFlavourServed(f flavour.Flavour) {
	pending := r.pendingServe
	if pending == nil || pending.token.Flavour() != f {
		return
	}
	r.pendingServe = nil
	r.servingFlavour = false
	r.tokenBox.StashFlavourToken(pending.token)
	if r.forwardFlavourToken(pending.token) && pending.sendEndOfUse {
		r.sendEndOfUse(tokens.FlavourTokenID(f))
	}
}

// notifyScreen implements screen selection failover (spec.md §4.1): try
// screen ids starting at the order's originating screen, wrapping around,
// until one accepts the connection. Run as a fire-and-forget goroutine so
// a slow or down screen never blocks the event loop.
func (r *Robot) notifyScreen(msg protocol.ScreenMsg) {
	origin := msg.OrderID().ScreenID
	for i := uint16(0); i < r.cfg.ScreenCount; i++ {
		target := (origin + i) % r.cfg.ScreenCount
		addr := screenAddr(r.cfg.ScreenStartingPort, target)
		conn, err := dialScreen(addr)
		if err != nil {
			continue
		}
		err = protocol.WriteFrame(conn, msg)
		conn.Close()
		if err == nil {
			r.logger.Info("notified screen",
				logging.String("kind", msg.Kind()),
				logging.String("order_id", msg.OrderID().String()),
				logging.Int("screen_id", int(target)))
			return
		}
	}
	r.logger.Warn("failed to notify any screen",
		logging.String("kind", msg.Kind()),
		logging.String("order_id", msg.OrderID().String()))
}
