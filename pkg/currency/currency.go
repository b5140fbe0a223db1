// Package currency maps venue currency codes onto the canonical codes used
// throughout the library.
package currency

import "strings"

// Canonicalizer resolves venue currency codes. Lookups are case-insensitive;
// codes without an override are returned upper-cased.
//
// Two venue codes may map to the same canonical code. Such collisions are
// left as the venue table declares them; outbound requests carry market ids
// taken from the venue, never codes mapped back from canonical ones.
type Canonicalizer struct {
	common map[string]string
}

// New builds a Canonicalizer from a venue-code to canonical-code table.
func New(overrides map[string]string) *Canonicalizer {
	c := &Canonicalizer{common: make(map[string]string, len(overrides))}
	for venue, common := range overrides {
		c.common[strings.ToUpper(venue)] = common
	}
	return c
}

// Canonicalize returns the canonical code for a venue code.
func (c *Canonicalizer) Canonicalize(code string) string {
	upper := strings.ToUpper(code)
	if c == nil {
		return upper
	}
	if common, ok := c.common[upper]; ok {
		return common
	}
	return upper
}

// Pair canonicalizes a base and quote code in one call.
func (c *Canonicalizer) Pair(baseID, quoteID string) (base, quote string) {
	return c.Canonicalize(baseID), c.Canonicalize(quoteID)
}

// Symbol joins canonical base and quote codes into a market symbol.
func Symbol(base, quote string) string {
	return base + "/" + quote
}

// SplitSymbol splits "BASE/QUOTE". ok is false for anything else.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(symbol, "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}
