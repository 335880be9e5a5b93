package protocol

import (
	"encoding/json"
	"fmt"

	"icering/internal/orders"
)

// GatewayMsg is the tagged union of messages a gateway connection accepts.
type GatewayMsg struct {
	kind       string
	orderID    orders.ID
	cardNumber string
}

const (
	gatewayCapturePayment = "CapturePayment"
	gatewayCommitPayment  = "CommitPayment"
	gatewayCancelPayment  = "CancelPayment"
)

// CapturePayment asks the gateway to validate the card for an order.
func CapturePayment(id orders.ID, cardNumber string) GatewayMsg {
	return GatewayMsg{kind: gatewayCapturePayment, orderID: id, cardNumber: cardNumber}
}

// CommitPayment tells the gateway the order completed and may be charged.
func CommitPayment(id orders.ID) GatewayMsg {
	return GatewayMsg{kind: gatewayCommitPayment, orderID: id}
}

// CancelPayment tells the gateway the order was cancelled and must not be
// charged.
func CancelPayment(id orders.ID) GatewayMsg {
	return GatewayMsg{kind: gatewayCancelPayment, orderID: id}
}

// Kind reports which variant this message is.
func (m GatewayMsg) Kind() string { return m.kind }

// OrderID returns the order this message concerns.
func (m GatewayMsg) OrderID() orders.ID { return m.orderID }

// CardNumber returns the card number for a CapturePayment message.
func (m GatewayMsg) CardNumber() string { return m.cardNumber }

func (m GatewayMsg) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case gatewayCapturePayment:
		return json.Marshal(map[string]any{m.kind: []any{m.orderID, m.cardNumber}})
	case gatewayCommitPayment, gatewayCancelPayment:
		return json.Marshal(map[string]any{m.kind: m.orderID})
	default:
		return nil, fmt.Errorf("protocol: cannot marshal GatewayMsg with empty kind")
	}
}

func (m *GatewayMsg) UnmarshalJSON(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if len(envelope) != 1 {
		return fmt.Errorf("protocol: GatewayMsg envelope must have exactly one key, got %d", len(envelope))
	}
	for kind, payload := range envelope {
		switch kind {
		case gatewayCapturePayment:
			var tuple [2]json.RawMessage
			if err := json.Unmarshal(payload, &tuple); err != nil {
				return err
			}
			var id orders.ID
			var card string
			if err := json.Unmarshal(tuple[0], &id); err != nil {
				return err
			}
			if err := json.Unmarshal(tuple[1], &card); err != nil {
				return err
			}
			*m = CapturePayment(id, card)
		case gatewayCommitPayment:
			var id orders.ID
			if err := json.Unmarshal(payload, &id); err != nil {
				return err
			}
			*m = CommitPayment(id)
		case gatewayCancelPayment:
			var id orders.ID
			if err := json.Unmarshal(payload, &id); err != nil {
				return err
			}
			*m = CancelPayment(id)
		default:
			return fmt.Errorf("protocol: unknown GatewayMsg kind %q", kind)
		}
	}
	return nil
}
