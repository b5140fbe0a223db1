package cex

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"tukar/pkg/core"
	"tukar/pkg/currency"
)

var (
	feeMaker = core.MustDecimal("0.0016")
	feeTaker = core.MustDecimal("0.0025")
)

type currencyProfile struct {
	Data struct {
		Symbols []currencySymbol `json:"symbols"`
		Pairs   []pairProfile    `json:"pairs"`
	} `json:"data"`
}

type currencySymbol struct {
	Code      string `json:"code"`
	Precision int    `json:"precision"`
	Scale     int    `json:"scale"`
}

type pairProfile struct {
	Symbol1        string `json:"symbol1"`
	Symbol2        string `json:"symbol2"`
	PricePrecision int    `json:"pricePrecision"`
}

type currencyLimits struct {
	Data struct {
		Pairs []pairLimit `json:"pairs"`
	} `json:"data"`
}

// pairLimit is one currency_limits entry. maxLotSize is null for some pairs.
type pairLimit struct {
	Symbol1      string      `json:"symbol1"`
	Symbol2      string      `json:"symbol2"`
	MinLotSize   core.Number `json:"minLotSize"`
	MinLotSizeS2 core.Number `json:"minLotSizeS2"`
	MaxLotSize   core.Number `json:"maxLotSize"`
	MinPrice     core.Number `json:"minPrice"`
	MaxPrice     core.Number `json:"maxPrice"`
}

type tickers struct {
	Data []ticker `json:"data"`
}

type ticker struct {
	Timestamp string      `json:"timestamp"`
	Pair      string      `json:"pair"`
	Low       core.Number `json:"low"`
	High      core.Number `json:"high"`
	Last      core.Number `json:"last"`
	Volume    core.Number `json:"volume"`
	Bid       core.Number `json:"bid"`
	Ask       core.Number `json:"ask"`
}

type openOrder struct {
	ID      string      `json:"id"`
	Time    string      `json:"time"`
	Type    string      `json:"type"`
	Price   core.Number `json:"price"`
	Amount  core.Number `json:"amount"`
	Pending core.Number `json:"pending"`
	Symbol1 string      `json:"symbol1"`
	Symbol2 string      `json:"symbol2"`
}

// archivedOrder wraps an archived_orders entry. Totals are keyed by
// currency, e.g. "ta:USD", so the entry is kept as a generic object.
type archivedOrder map[string]any

func (a archivedOrder) text(key string) string {
	s, _ := a[key].(string)
	return s
}

// Normalizer converts CEX.IO payloads to canonical types.
type Normalizer struct {
	currencies *currency.Canonicalizer
}

func NewNormalizer() *Normalizer {
	return &Normalizer{currencies: currency.New(nil)}
}

func marketID(symbol1, symbol2 string) string {
	return symbol1 + "/" + symbol2
}

// NormalizeMarkets joins limits with the currency profile. Pairs whose
// currencies are missing from the profile are dropped; a pair without its
// own profile takes the quote currency's precision for prices.
func (n *Normalizer) NormalizeMarkets(profile *currencyProfile, limits *currencyLimits) []*core.Market {
	symbols := make(map[string]currencySymbol, len(profile.Data.Symbols))
	for _, s := range profile.Data.Symbols {
		symbols[s.Code] = s
	}
	pairs := make(map[string]pairProfile, len(profile.Data.Pairs))
	for _, p := range profile.Data.Pairs {
		pairs[marketID(p.Symbol1, p.Symbol2)] = p
	}

	markets := make([]*core.Market, 0, len(limits.Data.Pairs))
	for _, l := range limits.Data.Pairs {
		baseProfile, ok := symbols[l.Symbol1]
		if !ok {
			continue
		}
		quoteProfile, ok := symbols[l.Symbol2]
		if !ok {
			continue
		}
		id := marketID(l.Symbol1, l.Symbol2)
		base, quote := n.currencies.Pair(l.Symbol1, l.Symbol2)
		m := core.NewMarket(id, l.Symbol1, l.Symbol2, base, quote)
		m.AmountPrecision = baseProfile.Precision - baseProfile.Scale
		m.PricePrecision = quoteProfile.Precision
		if p, ok := pairs[id]; ok {
			m.PricePrecision = p.PricePrecision
		}
		m.AmountMin = l.MinLotSize.Dec()
		if !l.MaxLotSize.IsZero() {
			m.AmountMax = l.MaxLotSize.Dec()
		}
		m.PriceMin = l.MinPrice.Dec()
		if !l.MaxPrice.IsZero() {
			m.PriceMax = l.MaxPrice.Dec()
		}
		m.CostMin = l.MinLotSizeS2.Dec()
		m.FeeMaker = feeMaker
		m.FeeTaker = feeTaker
		m.URL = "https://cex.io/trade/" + l.Symbol1 + "-" + l.Symbol2
		m.Info = l
		markets = append(markets, m)
	}
	return markets
}

// NormalizeTicker converts a tickers entry. Timestamps arrive in seconds.
func (n *Normalizer) NormalizeTicker(data *ticker, m *core.Market) (*core.Ticker, error) {
	sec, err := core.ParseInt64(data.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("ticker timestamp %q: %w", data.Timestamp, err)
	}
	last := data.Last.Dec()
	return &core.Ticker{
		Symbol:     m.Symbol(),
		Timestamp:  sec * 1000,
		High:       data.High.Dec(),
		Low:        data.Low.Dec(),
		Bid:        data.Bid.Dec(),
		Ask:        data.Ask.Dec(),
		Last:       last,
		Close:      last,
		BaseVolume: data.Volume.Dec(),
		Info:       data,
	}, nil
}

// NormalizeBalances reads the per-currency objects of a balance reply,
// skipping scalar fields such as timestamp and username.
func (n *Normalizer) NormalizeBalances(raw map[string]any) (core.Balances, error) {
	balances := make(core.Balances, len(raw))
	for code, v := range raw {
		fields, ok := v.(map[string]any)
		if !ok {
			continue
		}
		free, err := core.DecimalOf(fields["available"])
		if err != nil {
			return nil, fmt.Errorf("%s available: %w", code, err)
		}
		used, err := core.DecimalOf(fields["orders"])
		if err != nil {
			return nil, fmt.Errorf("%s orders: %w", code, err)
		}
		balances[n.currencies.Canonicalize(code)] = core.NewBalanceAccount(free, used)
	}
	return balances, nil
}

func parseSide(s string) core.OrderSide {
	if s == "sell" {
		return core.SideSell
	}
	return core.SideBuy
}

// NormalizeOpenOrder converts an open_orders entry. CEX.IO only rests
// limit orders; time is in milliseconds.
func (n *Normalizer) NormalizeOpenOrder(data *openOrder, m *core.Market) (*core.Order, error) {
	ts, err := core.ParseInt64(data.Time)
	if err != nil {
		return nil, fmt.Errorf("order time %q: %w", data.Time, err)
	}
	o := &core.Order{
		ID:        data.ID,
		Timestamp: ts,
		Symbol:    m.Symbol(),
		Type:      core.TypeLimit,
		Side:      parseSide(data.Type),
		Status:    core.StatusOpen,
		Price:     data.Price.Dec(),
		Info:      data,
	}
	amount := data.Amount.Dec()
	o.FillAmounts(amount, core.Sub(amount, data.Pending.Dec()))
	if !o.Filled.IsZero() {
		o.Average = o.Price
		o.Cost = core.Mul(o.Price, o.Filled)
	}
	return o, nil
}

// parseOrderStatus maps archived statuses: d done, c cancelled without
// fills, cd cancelled after partial fills.
func parseOrderStatus(s string) core.OrderStatus {
	switch s {
	case "d":
		return core.StatusClosed
	case "c", "cd":
		return core.StatusCanceled
	}
	return core.StatusOpen
}

// archived holds the figures shared by orders and trades derived from an
// archived_orders entry.
type archived struct {
	id        string
	timestamp int64
	side      core.OrderSide
	amount    apd.Decimal
	filled    apd.Decimal
	maker     apd.Decimal
	taker     apd.Decimal
	fee       apd.Decimal
	price     apd.Decimal
}

func (n *Normalizer) readArchived(a archivedOrder, m *core.Market) (*archived, error) {
	ts, err := time.Parse(time.RFC3339, a.text("time"))
	if err != nil {
		return nil, fmt.Errorf("order time: %w", err)
	}
	out := &archived{
		id:        a.text("id"),
		timestamp: ts.UnixMilli(),
		side:      parseSide(a.text("type")),
	}
	quote := strings.ToUpper(m.QuoteID)
	fields := []struct {
		key string
		dst *apd.Decimal
	}{
		{"amount", &out.amount},
		{"price", &out.price},
		{"ta:" + quote, &out.maker},
		{"tta:" + quote, &out.taker},
	}
	for _, f := range fields {
		if *f.dst, err = core.DecimalOf(a[f.key]); err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
	}
	remains, err := core.DecimalOf(a["remains"])
	if err != nil {
		return nil, fmt.Errorf("remains: %w", err)
	}
	makerFee, err := core.DecimalOf(a["fa:"+quote])
	if err != nil {
		return nil, fmt.Errorf("fa:%s: %w", quote, err)
	}
	takerFee, err := core.DecimalOf(a["tfa:"+quote])
	if err != nil {
		return nil, fmt.Errorf("tfa:%s: %w", quote, err)
	}
	out.filled = core.Sub(out.amount, remains)
	out.fee = core.Add(makerFee, takerFee)
	return out, nil
}

func (a *archived) total() apd.Decimal {
	return core.Add(a.maker, a.taker)
}

// NormalizeArchivedOrder converts an archived_orders entry. The average
// price is the quote total over the filled amount.
func (n *Normalizer) NormalizeArchivedOrder(a archivedOrder, m *core.Market) (*core.Order, error) {
	r, err := n.readArchived(a, m)
	if err != nil {
		return nil, err
	}
	typ := core.TypeLimit
	if t := a.text("orderType"); t != "" {
		typ = core.ParseOrderType(t)
	}
	o := &core.Order{
		ID:          r.id,
		Timestamp:   r.timestamp,
		Symbol:      m.Symbol(),
		Type:        typ,
		Side:        r.side,
		Status:      parseOrderStatus(a.text("status")),
		Price:       r.price,
		Cost:        r.total(),
		FeeCost:     r.fee,
		FeeCurrency: m.Quote,
		Info:        a,
	}
	o.FillAmounts(r.amount, r.filled)
	if !r.filled.IsZero() {
		o.Average = core.Quo(o.Cost, r.filled)
	}
	return o, nil
}

// NormalizeArchivedTrade turns a filled archived order into one trade. The
// trade is maker or taker only when all of it filled on one side.
func (n *Normalizer) NormalizeArchivedTrade(a archivedOrder, m *core.Market) (*core.MyTrade, error) {
	r, err := n.readArchived(a, m)
	if err != nil {
		return nil, err
	}
	t := &core.MyTrade{
		ID:          r.id,
		Timestamp:   r.timestamp,
		Symbol:      m.Symbol(),
		OrderID:     r.id,
		Side:        r.side,
		Amount:      r.filled,
		Price:       core.Quo(r.total(), r.filled),
		FeeCost:     r.fee,
		FeeCurrency: m.Quote,
		Info:        a,
	}
	switch {
	case r.taker.IsZero() && !r.maker.IsZero():
		t.TakerOrMaker = core.Maker
	case r.maker.IsZero() && !r.taker.IsZero():
		t.TakerOrMaker = core.Taker
	}
	if cost := t.Cost(); !cost.IsZero() {
		rate := core.Quo(t.FeeCost, cost)
		t.FeeRate.Abs(&rate)
	}
	return t, nil
}
