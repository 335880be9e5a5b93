// Package tokens implements the two ring tokens (the order token and the
// per-flavour tokens) and the stash robots use to survive a crashed peer.
package tokens

import (
	"encoding/json"
	"fmt"

	"icering/internal/flavour"
)

// Kind distinguishes the order token from a flavour token.
type Kind int

const (
	// KindOrder identifies the single order token.
	KindOrder Kind = iota
	// KindFlavour identifies one of the five flavour tokens.
	KindFlavour
)

// ID names a specific token: either the order token, or the flavour token
// for one flavour. It is comparable, so it can key a TokenBox.
type ID struct {
	Kind    Kind
	Flavour flavour.Flavour
}

// OrderTokenID is the single identifier naming the order token.
var OrderTokenID = ID{Kind: KindOrder}

// FlavourTokenID names the token that carries the given flavour.
func FlavourTokenID(f flavour.Flavour) ID {
	return ID{Kind: KindFlavour, Flavour: f}
}

func (id ID) String() string {
	if id.Kind == KindOrder {
		return "order"
	}
	return fmt.Sprintf("flavour(%s)", id.Flavour)
}

// MarshalJSON encodes the order token id as the bare string "Order" and a
// flavour token id as {"Flavour":"<name>"}, mirroring a tagged union.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.Kind == KindOrder {
		return json.Marshal("Order")
	}
	return json.Marshal(map[string]flavour.Flavour{"Flavour": id.Flavour})
}

// UnmarshalJSON decodes either representation produced by MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString != "Order" {
			return fmt.Errorf("tokens: unknown token id %q", asString)
		}
		*id = OrderTokenID
		return nil
	}
	var asObject struct {
		Flavour flavour.Flavour `json:"Flavour"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("tokens: invalid token id %s: %w", data, err)
	}
	*id = FlavourTokenID(asObject.Flavour)
	return nil
}
