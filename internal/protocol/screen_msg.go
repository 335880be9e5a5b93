package protocol

import (
	"encoding/json"
	"fmt"

	"icering/internal/orders"
)

// ScreenMsg is the tagged union of messages a screen's confirmation
// listener accepts from robots.
type ScreenMsg struct {
	kind    string
	orderID orders.ID
}

const (
	screenConfirmOrder = "ConfirmOrder"
	screenCancelOrder  = "CancelOrder"
)

// ConfirmOrder tells the screen the order was fully served.
func ConfirmOrder(id orders.ID) ScreenMsg {
	return ScreenMsg{kind: screenConfirmOrder, orderID: id}
}

// CancelOrder tells the screen the order could not be completed (e.g. a
// flavour token held too few servings).
func CancelOrder(id orders.ID) ScreenMsg {
	return ScreenMsg{kind: screenCancelOrder, orderID: id}
}

// Kind reports which variant this message is.
func (m ScreenMsg) Kind() string { return m.kind }

// OrderID returns the order this message concerns.
func (m ScreenMsg) OrderID() orders.ID { return m.orderID }

func (m ScreenMsg) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case screenConfirmOrder, screenCancelOrder:
		return json.Marshal(map[string]any{m.kind: m.orderID})
	default:
		return nil, fmt.Errorf("protocol: cannot marshal ScreenMsg with empty kind")
	}
}

func (m *ScreenMsg) UnmarshalJSON(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if len(envelope) != 1 {
		return fmt.Errorf("protocol: ScreenMsg envelope must have exactly one key, got %d", len(envelope))
	}
	for kind, payload := range envelope {
		var id orders.ID
		if err := json.Unmarshal(payload, &id); err != nil {
			return err
		}
		switch kind {
		case screenConfirmOrder:
			*m = ConfirmOrder(id)
		case screenCancelOrder:
			*m = CancelOrder(id)
		default:
			return fmt.Errorf("protocol: unknown ScreenMsg kind %q", kind)
		}
	}
	return nil
}
