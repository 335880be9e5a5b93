package ring

import (
	"testing"

	"icering/internal/flavour"
	"icering/internal/logging"
	"icering/internal/orders"
	"icering/internal/tokens"
)

func newTestRobot(id, count uint16) *Robot {
	return New(Config{
		ID:                      id,
		RobotCount:              count,
		ScreenCount:             1,
		StartingIcecream:        10,
		RobotStartingPort:       19200,
		RobotScreenStartingPort: 19300,
		ScreenStartingPort:      19100,
		Logger:                  logging.NewTestLogger(),
	})
}

func TestIntermediateIDsBetweenSelfAndNext(t *testing.T) {
	r := newTestRobot(0, 5)
	next := uint16(3)
	r.nextID = &next

	got := r.intermediateIDs()
	want := []uint16{1, 2}
	if len(got) != len(want) {
		t.Fatalf("intermediateIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("intermediateIDs() = %v, want %v", got, want)
		}
	}
}

func TestIntermediateIDsWithoutNextCoversEveryoneElse(t *testing.T) {
	r := newTestRobot(2, 4)

	got := r.intermediateIDs()
	want := []uint16{3, 0, 1}
	if len(got) != len(want) {
		t.Fatalf("intermediateIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("intermediateIDs() = %v, want %v", got, want)
		}
	}
}

func TestIntermediateIDsAdjacentNextIsEmpty(t *testing.T) {
	r := newTestRobot(0, 3)
	next := uint16(1)
	r.nextID = &next

	if got := r.intermediateIDs(); len(got) != 0 {
		t.Fatalf("expected no intermediate ids when next is the immediate successor, got %v", got)
	}
}

func TestDownloadCurrentOrderStealsIntermediateInProgress(t *testing.T) {
	r := newTestRobot(2, 4)
	stale := orders.New(orders.NewID(0, 1), map[flavour.Flavour]uint{flavour.Menta: 2})

	token := tokens.NewOrderToken(3)
	token.AddInProgress(3, stale) // id 3 is intermediate between robot 2 and itself (no next set)

	r.downloadCurrentOrder(&token)

	if r.currentOrder == nil {
		t.Fatal("expected a stolen order to be claimed")
	}
	if r.currentOrder.ID != stale.ID {
		t.Fatalf("claimed order id = %v, want %v", r.currentOrder.ID, stale.ID)
	}
	if claimed, ok := token.InProgressOf(2); !ok || claimed.ID != stale.ID {
		t.Fatalf("expected order reclaimed under self id 2, got %v ok=%v", claimed, ok)
	}
	if _, stillThere := token.InProgressOf(3); stillThere {
		t.Fatal("stolen order should no longer be claimed under the crashed robot's id")
	}
}

func TestDownloadCurrentOrderFallsBackToQueue(t *testing.T) {
	r := newTestRobot(0, 3)
	queued := orders.New(orders.NewID(0, 7), map[flavour.Flavour]uint{flavour.Chocolate: 1})

	token := tokens.NewOrderToken(0)
	token.UploadNewOrders(queued)

	r.downloadCurrentOrder(&token)

	if r.currentOrder == nil || r.currentOrder.ID != queued.ID {
		t.Fatalf("expected queued order %v to be claimed, got %v", queued.ID, r.currentOrder)
	}
	if _, ok := token.InProgressOf(0); !ok {
		t.Fatal("expected claimed order recorded as in-progress under self id")
	}
}

func TestDownloadCurrentOrderClearsStaleSelfClaimFirst(t *testing.T) {
	r := newTestRobot(0, 3)
	stale := orders.New(orders.NewID(1, 1), map[flavour.Flavour]uint{flavour.Frutilla: 1})
	fresh := orders.New(orders.NewID(1, 2), map[flavour.Flavour]uint{flavour.Frutilla: 1})

	token := tokens.NewOrderToken(0)
	token.AddInProgress(0, stale)
	token.UploadNewOrders(fresh)

	r.downloadCurrentOrder(&token)

	if r.currentOrder == nil || r.currentOrder.ID != fresh.ID {
		t.Fatalf("expected the stale self-claim discarded and the queue head claimed instead, got %v", r.currentOrder)
	}
}

func TestEndOfUseRetainsStashWhenPrevEqualsNext(t *testing.T) {
	r := newTestRobot(0, 2)
	id := uint16(1)
	r.prevID, r.nextID = &id, &id

	r.tokenBox.StashOrderToken(tokens.NewOrderToken(0))
	r.handleEndOfUse(tokens.OrderTokenID)

	if _, ok := r.tokenBox.TakeOrderToken(); !ok {
		t.Fatal("expected stash retained when prevID == nextID (ring of size <= 2 tiebreak)")
	}
}

func TestEndOfUseDiscardsStashWhenPrevDiffersFromNext(t *testing.T) {
	r := newTestRobot(0, 3)
	prev, next := uint16(2), uint16(1)
	r.prevID, r.nextID = &prev, &next

	r.tokenBox.StashOrderToken(tokens.NewOrderToken(0))
	r.handleEndOfUse(tokens.OrderTokenID)

	if _, ok := r.tokenBox.TakeOrderToken(); ok {
		t.Fatal("expected stash discarded once prevID and nextID disagree")
	}
}

func TestApplyFlavourTokenServesAndDeductsInventory(t *testing.T) {
	r := newTestRobot(0, 1)
	order := orders.New(orders.NewID(0, 0), map[flavour.Flavour]uint{flavour.Chocolate: 3})
	r.currentOrder = &order

	token := tokens.NewFlavourToken(0, flavour.Chocolate, 10)
	served, duration := r.applyFlavourToken(&token)

	if !served || duration != 3 {
		t.Fatalf("applyFlavourToken() = (%v, %d), want (true, 3)", served, duration)
	}
	if !r.servingFlavour {
		t.Fatal("expected servingFlavour to be set synchronously")
	}
	if token.Servings() != 7 {
		t.Fatalf("token servings = %d, want 7", token.Servings())
	}
	if r.currentOrder.Has(flavour.Chocolate) {
		t.Fatal("expected chocolate crossed off the order")
	}
}

func TestApplyFlavourTokenCancelsOrderWhenInsufficient(t *testing.T) {
	r := newTestRobot(0, 1)
	order := orders.New(orders.NewID(0, 0), map[flavour.Flavour]uint{flavour.Frutilla: 100})
	r.currentOrder = &order

	token := tokens.NewFlavourToken(0, flavour.Frutilla, 10)
	served, _ := r.applyFlavourToken(&token)

	if served {
		t.Fatal("expected insufficient servings to not start a serve")
	}
	if r.currentOrder != nil {
		t.Fatal("expected the order to be cleared on cancellation")
	}
	if token.Servings() != 10 {
		t.Fatalf("token servings must be untouched on cancellation, got %d", token.Servings())
	}
}

func TestApplyFlavourTokenIgnoresUnrelatedFlavour(t *testing.T) {
	r := newTestRobot(0, 1)
	order := orders.New(orders.NewID(0, 0), map[flavour.Flavour]uint{flavour.Menta: 1})
	r.currentOrder = &order

	token := tokens.NewFlavourToken(0, flavour.Chocolate, 10)
	served, _ := r.applyFlavourToken(&token)

	if served {
		t.Fatal("expected a flavour the order doesn't need to pass through untouched")
	}
	if r.currentOrder == nil || !r.currentOrder.Has(flavour.Menta) {
		t.Fatal("expected the unrelated order to be left intact")
	}
}

func TestApplyFlavourTokenSkipsWhileAlreadyServing(t *testing.T) {
	r := newTestRobot(0, 1)
	order := orders.New(orders.NewID(0, 0), map[flavour.Flavour]uint{flavour.Chocolate: 1})
	r.currentOrder = &order
	r.servingFlavour = true

	token := tokens.NewFlavourToken(0, flavour.Chocolate, 10)
	served, _ := r.applyFlavourToken(&token)

	if served {
		t.Fatal("expected no new serve to start while already serving")
	}
	if !r.currentOrder.Has(flavour.Chocolate) {
		t.Fatal("order must not be mutated while servingFlavour is true")
	}
}

func TestInventoryCacheDefaultsToStartingIcecream(t *testing.T) {
	c := newInventoryCache(10)
	snap := c.snapshot()
	if snap[flavour.Chocolate] != 10 {
		t.Fatalf("expected default of 10, got %d", snap[flavour.Chocolate])
	}
	c.set(flavour.Chocolate, 7)
	if snap2 := c.snapshot(); snap2[flavour.Chocolate] != 7 {
		t.Fatalf("expected updated value 7, got %d", snap2[flavour.Chocolate])
	}
	if snap[flavour.Chocolate] != 10 {
		t.Fatal("snapshot must be a copy, not aliased to the live map")
	}
}

func TestRobotsConnectedReflectsBootstrapState(t *testing.T) {
	r := newTestRobot(0, 3)
	if got := r.RobotsConnected(); got != 0 {
		t.Fatalf("expected 0 before bootstrap, got %d", got)
	}
	r.bootstrapped.Store(true)
	if got := r.RobotsConnected(); got != 3 {
		t.Fatalf("expected RobotCount after bootstrap, got %d", got)
	}
}
