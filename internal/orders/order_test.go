package orders

import (
	"testing"

	"icering/internal/flavour"
)

func TestFromClientOrder(t *testing.T) {
	co := ClientOrder{
		Flavours:   map[flavour.Flavour]uint{flavour.Chocolate: 1, flavour.DulceDeLeche: 1},
		CardNumber: "0000-1111-2222-3333",
	}
	order := FromClientOrder(co, 1, 1)
	if order.ID != NewID(1, 1) {
		t.Fatalf("unexpected id: %v", order.ID)
	}
	if !order.Has(flavour.Chocolate) || !order.Has(flavour.DulceDeLeche) {
		t.Fatal("expected both requested flavours present")
	}
}

func TestCross(t *testing.T) {
	order := New(NewID(1, 1), map[flavour.Flavour]uint{flavour.Chocolate: 1, flavour.DulceDeLeche: 1})
	if servings, ok := order.Cross(flavour.Chocolate); !ok || servings != 1 {
		t.Fatalf("expected cross to remove chocolate with 1 serving, got %d %v", servings, ok)
	}
	if _, ok := order.Cross(flavour.Chocolate); ok {
		t.Fatal("expected second cross of same flavour to report absent")
	}
}

func TestIsCompleted(t *testing.T) {
	order := New(NewID(1, 1), map[flavour.Flavour]uint{flavour.Chocolate: 1, flavour.DulceDeLeche: 1})
	if order.IsCompleted() {
		t.Fatal("order with remaining flavours should not be completed")
	}
	order.Cross(flavour.Chocolate)
	if order.IsCompleted() {
		t.Fatal("order still owes dulce de leche")
	}
	order.Cross(flavour.DulceDeLeche)
	if !order.IsCompleted() {
		t.Fatal("order with no remaining flavours should be completed")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	order := New(NewID(1, 1), map[flavour.Flavour]uint{flavour.Chocolate: 1})
	clone := order.Clone()
	clone.Cross(flavour.Chocolate)
	if !order.Has(flavour.Chocolate) {
		t.Fatal("mutating the clone must not affect the original")
	}
}
