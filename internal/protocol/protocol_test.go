package protocol

import (
	"bytes"
	"testing"

	"icering/internal/flavour"
	"icering/internal/orders"
	"icering/internal/tokens"
)

func TestGatewayMsgRoundTrip(t *testing.T) {
	id := orders.NewID(1, 42)
	cases := []GatewayMsg{
		CapturePayment(id, "4111-1111-1111-1111"),
		CommitPayment(id),
		CancelPayment(id),
	}
	for _, msg := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, msg); err != nil {
			t.Fatalf("write frame: %v", err)
		}
		var got GatewayMsg
		if err := NewFrameReader(&buf).ReadFrame(&got); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if got.Kind() != msg.Kind() || got.OrderID() != msg.OrderID() || got.CardNumber() != msg.CardNumber() {
			t.Fatalf("round trip mismatch: want %+v got %+v", msg, got)
		}
	}
}

func TestScreenMsgRoundTrip(t *testing.T) {
	id := orders.NewID(2, 7)
	for _, msg := range []ScreenMsg{ConfirmOrder(id), CancelOrder(id)} {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, msg); err != nil {
			t.Fatalf("write frame: %v", err)
		}
		var got ScreenMsg
		if err := NewFrameReader(&buf).ReadFrame(&got); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if got.Kind() != msg.Kind() || got.OrderID() != msg.OrderID() {
			t.Fatalf("round trip mismatch: want %+v got %+v", msg, got)
		}
	}
}

func TestRobotMsgRoundTrip(t *testing.T) {
	order := orders.New(orders.NewID(1, 1), map[flavour.Flavour]uint{flavour.Chocolate: 2})
	ft := tokens.NewFlavourToken(3, flavour.Chocolate, 5)
	ot := tokens.NewOrderToken(3)
	ot.UploadNewOrders(order)

	cases := []RobotMsg{
		RecvOrderToken(ot),
		RecvFlavourToken(ft),
		Disconnect(),
		EndOfUse(tokens.OrderTokenID),
		EndOfUse(tokens.FlavourTokenID(flavour.Menta)),
		RecvOrder(order),
	}
	for _, msg := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, msg); err != nil {
			t.Fatalf("write frame %s: %v", msg.Kind(), err)
		}
		var got RobotMsg
		if err := NewFrameReader(&buf).ReadFrame(&got); err != nil {
			t.Fatalf("read frame %s: %v", msg.Kind(), err)
		}
		if got.Kind() != msg.Kind() {
			t.Fatalf("kind mismatch: want %s got %s", msg.Kind(), got.Kind())
		}
	}
}

func TestFrameReaderMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	id := orders.NewID(1, 1)
	if err := WriteFrame(&buf, ConfirmOrder(id)); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, CancelOrder(id)); err != nil {
		t.Fatal(err)
	}
	reader := NewFrameReader(&buf)
	var first, second ScreenMsg
	if err := reader.ReadFrame(&first); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if err := reader.ReadFrame(&second); err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if first.Kind() != "ConfirmOrder" || second.Kind() != "CancelOrder" {
		t.Fatalf("unexpected order: %s then %s", first.Kind(), second.Kind())
	}
}
