package tokens

import (
	"encoding/json"

	"icering/internal/flavour"
)

// FlavourToken carries servings of a single flavour around the ring.
// Servings only ever decrease: Take never hands out more than the token
// holds.
type FlavourToken struct {
	sender   uint16
	flavour  flavour.Flavour
	servings uint
}

// NewFlavourToken creates a token for the given flavour, starting owned by
// sender with the given servings.
func NewFlavourToken(sender uint16, f flavour.Flavour, servings uint) FlavourToken {
	return FlavourToken{sender: sender, flavour: f, servings: servings}
}

// Mark records who last forwarded the token.
func (t *FlavourToken) Mark(id uint16) { t.sender = id }

// Sender returns who last forwarded the token.
func (t FlavourToken) Sender() uint16 { return t.sender }

// Flavour returns the flavour this token carries.
func (t FlavourToken) Flavour() flavour.Flavour { return t.flavour }

// Servings returns the servings remaining.
func (t FlavourToken) Servings() uint { return t.servings }

// HasEnough reports whether the token can satisfy a request for the given
// number of servings.
func (t FlavourToken) HasEnough(servings uint) bool { return t.servings >= servings }

// Take removes up to servings from the token and returns how many were
// actually taken (less than requested if the token is running low).
func (t *FlavourToken) Take(servings uint) uint {
	taken := servings
	if taken > t.servings {
		taken = t.servings
	}
	t.servings -= taken
	return taken
}

// ID returns this token's identifier.
func (t FlavourToken) ID() ID { return FlavourTokenID(t.flavour) }

type flavourTokenWire struct {
	Sender   uint16          `json:"sender"`
	Flavour  flavour.Flavour `json:"flavour"`
	Servings uint            `json:"servings"`
}

// MarshalJSON encodes the token's observable fields for the wire.
func (t FlavourToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(flavourTokenWire{Sender: t.sender, Flavour: t.flavour, Servings: t.servings})
}

// UnmarshalJSON decodes a wire-format flavour token.
func (t *FlavourToken) UnmarshalJSON(data []byte) error {
	var wire flavourTokenWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.sender, t.flavour, t.servings = wire.Sender, wire.Flavour, wire.Servings
	return nil
}
