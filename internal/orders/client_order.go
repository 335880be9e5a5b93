package orders

import "icering/internal/flavour"

// ClientOrder is what a screen reads from its order intake stream: the
// flavours requested and the card number to charge.
type ClientOrder struct {
	Flavours   map[flavour.Flavour]uint `json:"flavours"`
	CardNumber string                   `json:"card_number"`
}
