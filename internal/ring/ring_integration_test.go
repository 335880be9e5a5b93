package ring

import (
	"context"
	"testing"
	"time"

	"icering/internal/flavour"
	"icering/internal/logging"
	"icering/internal/orders"
	"icering/internal/tokens"
)

// waitForCondition polls cond until it reports true or deadline passes,
// failing the test on timeout. Integration tests below drive real event
// loops and TCP connections, so assertions can't be made synchronously.
func waitForCondition(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}

func integrationConfig(id, count uint16, base uint16) Config {
	return Config{
		ID:                      id,
		RobotCount:              count,
		ScreenCount:             1,
		StartingIcecream:        10,
		RobotStartingPort:       base,
		RobotScreenStartingPort: base + 100,
		ScreenStartingPort:      base + 200,
		Logger:                  logging.NewTestLogger(),
	}
}

// TestRingTwoRobotsHealAndReleaseStashedTokensAfterNextDies drives two real
// Robot.Run event loops over loopback TCP, seeds the ring with one
// OrderToken and one FlavourToken, then kills robot 1 the way a crash would
// be observed: its listeners are closed (so redialling it fails) and its
// live connection to robot 0 is severed (so robot 0's reader actually sees
// EOF, rather than relying on ctx cancellation alone). With RobotCount 2,
// robot 0's healed "next" is itself - the same self-loop a lone bootstrap
// forms - so continued circulation after the heal is proof that
// CheckTokenBox re-released the stash rather than losing it.
func TestRingTwoRobotsHealAndReleaseStashedTokensAfterNextDies(t *testing.T) {
	const base = uint16(29200)
	r0 := New(integrationConfig(0, 2, base))
	r1 := New(integrationConfig(1, 2, base))

	ctx0, cancel0 := context.WithCancel(context.Background())
	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel0()
	defer cancel1()

	go r0.Run(ctx0)
	go r1.Run(ctx1)

	waitForCondition(t, time.Second, "both robots to bootstrap", func() bool {
		return r0.RobotsConnected() == 2 && r1.RobotsConnected() == 2
	})

	r0.postEvent(event{kind: evtRecvOrderToken, orderToken: tokens.NewOrderToken(0), fromPrev: false})
	r0.postEvent(event{kind: evtRecvFlavourToken, flavourToken: tokens.NewFlavourToken(0, flavour.Chocolate, 10), fromPrev: false})

	waitForCondition(t, time.Second, "robot 1 to observe both tokens from robot 0", func() bool {
		return r1.TokensObserved() >= 2
	})

	cancel1()
	r1.prevConn.Close()

	before := r0.TokensObserved()
	waitForCondition(t, 2*time.Second, "robot 0 to keep observing tokens after healing to itself", func() bool {
		return r0.TokensObserved() > before
	})
}

// TestRingOneRobotAloneSynthesisesAndServesOrder drives a single Robot.Run
// that finds itself alone at bootstrap, synthesises the order token and
// every flavour token (per spec.md's bootstrap rule), and verifies a
// freshly placed order is actually served: inventory for the ordered
// flavour drops by the order's requested amount once the token completes a
// lap back to the robot holding the order.
func TestRingOneRobotAloneSynthesisesAndServesOrder(t *testing.T) {
	const base = uint16(29300)
	r := New(integrationConfig(0, 1, base))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	waitForCondition(t, time.Second, "the lone robot to bootstrap", func() bool {
		return r.RobotsConnected() == 1
	})

	order := orders.New(orders.NewID(0, 1), map[flavour.Flavour]uint{flavour.Menta: 2})
	r.postEvent(event{kind: evtRecvOrder, order: order})

	waitForCondition(t, 4*time.Second, "the menta flavour token to serve the order", func() bool {
		return r.ServingsRemaining()[flavour.Menta] == 8
	})
}

// TestRingSuccessorStealsOrderFromCrashedIntermediate models spec.md §8.4:
// a three-robot ring (0 -> 1 -> 2 -> 0) where robot 1 holds an in-progress
// order when it crashes. Robot 0, whose next was robot 1, detects the
// death, heals past it to robot 2, and its intermediateIDs then widen to
// cover the crashed id - the same pure logic
// TestDownloadCurrentOrderStealsIntermediateInProgress covers, now
// exercised end-to-end: robot 0 heals through a live Robot.Run loop before
// the OrderToken carrying robot 1's stranded claim reaches it.
func TestRingSuccessorStealsOrderFromCrashedIntermediate(t *testing.T) {
	const base = uint16(29400)
	r0 := New(integrationConfig(0, 3, base))
	r1 := New(integrationConfig(1, 3, base))
	r2 := New(integrationConfig(2, 3, base))

	ctx0, cancel0 := context.WithCancel(context.Background())
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel0()
	defer cancel1()
	defer cancel2()

	go r0.Run(ctx0)
	go r1.Run(ctx1)
	go r2.Run(ctx2)

	waitForCondition(t, time.Second, "all three robots to bootstrap", func() bool {
		return r0.RobotsConnected() == 3 && r1.RobotsConnected() == 3 && r2.RobotsConnected() == 3
	})

	stranded := orders.New(orders.NewID(0, 1), map[flavour.Flavour]uint{flavour.Frutilla: 1})

	cancel1()
	r1.prevConn.Close()

	waitForCondition(t, time.Second, "robot 0 to heal past the crashed robot 1 onto robot 2", func() bool {
		return r0.nextID != nil && *r0.nextID == 2
	})

	token := tokens.NewOrderToken(0)
	token.AddInProgress(1, stranded)
	r0.postEvent(event{kind: evtRecvOrderToken, orderToken: token, fromPrev: false})

	waitForCondition(t, 2*time.Second, "robot 0 to steal the order stranded under robot 1", func() bool {
		return r0.currentOrder != nil && r0.currentOrder.ID == stranded.ID
	})
}
