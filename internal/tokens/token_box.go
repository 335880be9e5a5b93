package tokens

import "icering/internal/flavour"

// TokenBox holds tokens a robot has forwarded to its next peer but that
// have not yet come back with an EndOfUse acknowledgement. If next dies,
// the box is what the robot's healing path re-synthesizes from.
type TokenBox struct {
	orderToken    *OrderToken
	flavourTokens map[flavour.Flavour]FlavourToken
}

// NewTokenBox returns an empty box.
func NewTokenBox() *TokenBox {
	return &TokenBox{flavourTokens: make(map[flavour.Flavour]FlavourToken)}
}

// StashOrderToken records the order token as forwarded but not yet acked.
func (b *TokenBox) StashOrderToken(token OrderToken) {
	t := token
	b.orderToken = &t
}

// DiscardOrderToken drops the stashed order token, e.g. on EndOfUse.
func (b *TokenBox) DiscardOrderToken() {
	b.orderToken = nil
}

// TakeOrderToken removes and returns the stashed order token, if any.
func (b *TokenBox) TakeOrderToken() (OrderToken, bool) {
	if b.orderToken == nil {
		return OrderToken{}, false
	}
	token := *b.orderToken
	b.orderToken = nil
	return token, true
}

// StashFlavourToken records a flavour token as forwarded but not yet acked.
func (b *TokenBox) StashFlavourToken(token FlavourToken) {
	if b.flavourTokens == nil {
		b.flavourTokens = make(map[flavour.Flavour]FlavourToken)
	}
	b.flavourTokens[token.Flavour()] = token
}

// DiscardFlavourToken drops the stashed token for f, e.g. on EndOfUse.
func (b *TokenBox) DiscardFlavourToken(f flavour.Flavour) {
	delete(b.flavourTokens, f)
}

// TakeFlavourTokens removes and returns every stashed flavour token, used
// when next is declared dead and its custody must be reclaimed.
func (b *TokenBox) TakeFlavourTokens() []FlavourToken {
	out := make([]FlavourToken, 0, len(b.flavourTokens))
	for _, t := range b.flavourTokens {
		out = append(out, t)
	}
	b.flavourTokens = make(map[flavour.Flavour]FlavourToken)
	return out
}
