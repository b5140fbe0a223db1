package core

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
)

// Market describes one tradable pair on a venue.
//
// The canonical symbol is never stored: Symbol derives it from Base and
// Quote, so it always reflects the canonicalized currency codes. Max bounds
// are Unbounded unless the venue publishes a limit.
type Market struct {
	// ID is the venue's own pair identifier (e.g., "BTCUSDT", "tBTCUSD").
	ID string `json:"id"`
	// BaseID is the venue code of the base currency.
	BaseID string `json:"baseId"`
	// QuoteID is the venue code of the quote currency.
	QuoteID string `json:"quoteId"`
	// Base is the canonical base currency.
	Base string `json:"base"`
	// Quote is the canonical quote currency.
	Quote string `json:"quote"`
	// Active is false when trading is halted.
	Active bool `json:"active"`
	// Margin flags that the venue offers margin on this pair.
	Margin bool `json:"margin"`
	// Type is the market category.
	Type MarketType `json:"type"`

	PricePrecision  int `json:"pricePrecision"`
	AmountPrecision int `json:"amountPrecision"`

	PriceMin  apd.Decimal `json:"priceMin"`
	PriceMax  apd.Decimal `json:"priceMax"`
	AmountMin apd.Decimal `json:"amountMin"`
	AmountMax apd.Decimal `json:"amountMax"`
	CostMin   apd.Decimal `json:"costMin"`
	CostMax   apd.Decimal `json:"costMax"`

	FeeMaker apd.Decimal `json:"feeMaker"`
	FeeTaker apd.Decimal `json:"feeTaker"`

	// URL points at the venue's trading page for the pair.
	URL string `json:"url,omitempty"`
	// Info is the venue payload the market was built from.
	Info any `json:"info,omitempty"`
}

// NewMarket returns an active spot market with unbounded maxima.
func NewMarket(id, baseID, quoteID, base, quote string) *Market {
	return &Market{
		ID:        id,
		BaseID:    baseID,
		QuoteID:   quoteID,
		Base:      base,
		Quote:     quote,
		Active:    true,
		Type:      MarketTypeSpot,
		PriceMax:  Unbounded(),
		AmountMax: Unbounded(),
		CostMax:   Unbounded(),
	}
}

// Symbol returns the canonical "BASE/QUOTE" symbol.
func (m *Market) Symbol() string {
	return m.Base + "/" + m.Quote
}

// MarshalJSON adds the derived symbol to the encoded market.
func (m Market) MarshalJSON() ([]byte, error) {
	type alias Market
	return sonic.Marshal(&struct {
		Symbol string `json:"symbol"`
		*alias
	}{
		Symbol: m.Symbol(),
		alias:  (*alias)(&m),
	})
}

// CheckOrder validates an order size against the market limits.
// A zero price skips the price and cost checks (market orders).
func (m *Market) CheckOrder(amount, price apd.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	if amount.Cmp(&m.AmountMin) < 0 {
		return fmt.Errorf("amount %s below minimum %s for %s", amount.String(), m.AmountMin.String(), m.Symbol())
	}
	if !IsUnbounded(m.AmountMax) && amount.Cmp(&m.AmountMax) > 0 {
		return fmt.Errorf("amount %s above maximum %s for %s", amount.String(), m.AmountMax.String(), m.Symbol())
	}
	if price.IsZero() {
		return nil
	}
	if price.Cmp(&m.PriceMin) < 0 {
		return fmt.Errorf("price %s below minimum %s for %s", price.String(), m.PriceMin.String(), m.Symbol())
	}
	if !IsUnbounded(m.PriceMax) && price.Cmp(&m.PriceMax) > 0 {
		return fmt.Errorf("price %s above maximum %s for %s", price.String(), m.PriceMax.String(), m.Symbol())
	}
	cost := Mul(amount, price)
	if cost.Cmp(&m.CostMin) < 0 {
		return fmt.Errorf("cost %s below minimum %s for %s", cost.String(), m.CostMin.String(), m.Symbol())
	}
	return nil
}
