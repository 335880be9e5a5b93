package ring

import (
	"net"

	"icering/internal/flavour"
	"icering/internal/orders"
	"icering/internal/tokens"
)

// eventKind tags the internal messages a robot's event loop processes. This
// is the Go rendering of the source's actor mailbox (spec.md §9): every
// state transition happens on one goroutine, driven by one channel.
type eventKind int

const (
	// evtBootstrap kicks off the initial FindNext/IsAlone sequence. Posted
	// exactly once, by Run, before the loop reads anything else.
	evtBootstrap eventKind = iota
	// evtConnect carries a freshly accepted peer connection, becoming prev.
	evtConnect
	// evtFindNext (re)establishes next, either at bootstrap or during
	// healing. Carries the next-generation the caller observed, so a stale
	// trigger from a connection already superseded is dropped.
	evtFindNext
	// evtCheckTokenBox re-releases every stashed token after next heals.
	evtCheckTokenBox
	// evtRecvOrderToken is the order token arriving from prev (fromPrev
	// true) or synthesised locally at bootstrap (fromPrev false).
	evtRecvOrderToken
	// evtRecvFlavourToken mirrors evtRecvOrderToken for a flavour token.
	evtRecvFlavourToken
	// evtEndOfUse is next acknowledging a forwarded token.
	evtEndOfUse
	// evtRecvOrder is a freshly placed order handed in by a screen.
	evtRecvOrder
	// evtFlavourServed fires once the serving-delay timer elapses.
	evtFlavourServed
)

// event is the single message type carried on a robot's event channel.
type event struct {
	kind eventKind
	gen  uint64

	conn         net.Conn
	orderToken   tokens.OrderToken
	flavourToken tokens.FlavourToken
	tokenID      tokens.ID
	order        orders.Order
	flavourID    flavour.Flavour
	fromPrev     bool
}
