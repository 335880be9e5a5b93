// Package orders models client orders and the orders in flight on the ring.
package orders

import "fmt"

// ID identifies an order by the screen that created it and a per-screen
// sequence number. It is comparable and safe to use as a map key.
type ID struct {
	ScreenID    uint16 `json:"screen_id"`
	OrderNumber uint64 `json:"order_number"`
}

// NewID constructs an order identifier.
func NewID(screenID uint16, orderNumber uint64) ID {
	return ID{ScreenID: screenID, OrderNumber: orderNumber}
}

// String renders a debug-friendly representation.
func (id ID) String() string {
	return fmt.Sprintf("%d/%d", id.ScreenID, id.OrderNumber)
}
