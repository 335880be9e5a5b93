package protocol

import (
	"encoding/json"
	"fmt"

	"icering/internal/orders"
	"icering/internal/tokens"
)

// RobotMsg is the tagged union of messages a robot's event loop accepts,
// whether from its prev peer, its next peer, or its screen.
type RobotMsg struct {
	kind         string
	orderToken   tokens.OrderToken
	flavourToken tokens.FlavourToken
	tokenID      tokens.ID
	order        orders.Order
}

const (
	robotRecvOrderToken   = "RecvOrderToken"
	robotRecvFlavourToken = "RecvFlavourToken"
	robotDisconnect       = "Disconnect"
	robotEndOfUse         = "EndOfUse"
	robotRecvOrder        = "RecvOrder"
)

// RecvOrderToken is sent by prev when forwarding the order token.
func RecvOrderToken(token tokens.OrderToken) RobotMsg {
	return RobotMsg{kind: robotRecvOrderToken, orderToken: token}
}

// RecvFlavourToken is sent by prev when forwarding a flavour token.
func RecvFlavourToken(token tokens.FlavourToken) RobotMsg {
	return RobotMsg{kind: robotRecvFlavourToken, flavourToken: token}
}

// Disconnect is sent by next just before it closes its connection to prev
// cleanly (as opposed to a crash, which prev discovers via a read error).
func Disconnect() RobotMsg { return RobotMsg{kind: robotDisconnect} }

// EndOfUse is sent by next back to prev once next has finished forwarding
// the named token onward, so prev can discard its stash.
func EndOfUse(id tokens.ID) RobotMsg {
	return RobotMsg{kind: robotEndOfUse, tokenID: id}
}

// RecvOrder is sent by a screen assigning a freshly placed order.
func RecvOrder(order orders.Order) RobotMsg {
	return RobotMsg{kind: robotRecvOrder, order: order}
}

// Kind reports which variant this message is.
func (m RobotMsg) Kind() string { return m.kind }

// OrderToken returns the payload of a RecvOrderToken message.
func (m RobotMsg) OrderToken() tokens.OrderToken { return m.orderToken }

// FlavourToken returns the payload of a RecvFlavourToken message.
func (m RobotMsg) FlavourToken() tokens.FlavourToken { return m.flavourToken }

// TokenID returns the payload of an EndOfUse message.
func (m RobotMsg) TokenID() tokens.ID { return m.tokenID }

// Order returns the payload of a RecvOrder message.
func (m RobotMsg) Order() orders.Order { return m.order }

func (m RobotMsg) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case robotRecvOrderToken:
		return json.Marshal(map[string]any{m.kind: m.orderToken})
	case robotRecvFlavourToken:
		return json.Marshal(map[string]any{m.kind: m.flavourToken})
	case robotDisconnect:
		return json.Marshal(m.kind)
	case robotEndOfUse:
		return json.Marshal(map[string]any{m.kind: m.tokenID})
	case robotRecvOrder:
		return json.Marshal(map[string]any{m.kind: m.order})
	default:
		return nil, fmt.Errorf("protocol: cannot marshal RobotMsg with empty kind")
	}
}

func (m *RobotMsg) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString != robotDisconnect {
			return fmt.Errorf("protocol: unknown RobotMsg kind %q", asString)
		}
		*m = Disconnect()
		return nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if len(envelope) != 1 {
		return fmt.Errorf("protocol: RobotMsg envelope must have exactly one key, got %d", len(envelope))
	}
	for kind, payload := range envelope {
		switch kind {
		case robotRecvOrderToken:
			var token tokens.OrderToken
			if err := json.Unmarshal(payload, &token); err != nil {
				return err
			}
			*m = RecvOrderToken(token)
		case robotRecvFlavourToken:
			var token tokens.FlavourToken
			if err := json.Unmarshal(payload, &token); err != nil {
				return err
			}
			*m = RecvFlavourToken(token)
		case robotEndOfUse:
			var id tokens.ID
			if err := json.Unmarshal(payload, &id); err != nil {
				return err
			}
			*m = EndOfUse(id)
		case robotRecvOrder:
			var order orders.Order
			if err := json.Unmarshal(payload, &order); err != nil {
				return err
			}
			*m = RecvOrder(order)
		default:
			return fmt.Errorf("protocol: unknown RobotMsg kind %q", kind)
		}
	}
	return nil
}
