package kucoin

import (
	"github.com/cockroachdb/apd/v3"

	"tukar/pkg/core"
	"tukar/pkg/currency"
)

// commonCurrencies resolves ticker collisions with better known assets.
var commonCurrencies = map[string]string{
	"BIFI": "Bifrost",
	"BULL": "Bullieverse",
	"EDGE": "DADI",
	"HOT":  "HOTNOW",
	"TRY":  "TRIAS",
	"VAI":  "VAIOT",
	"WAX":  "WAXP",
}

var (
	feeRate = core.MustDecimal("0.001")
	hundred = core.DecimalFromInt64(100)
)

type symbol struct {
	Symbol          string      `json:"symbol"`
	Name            string      `json:"name"`
	BaseCurrency    string      `json:"baseCurrency"`
	QuoteCurrency   string      `json:"quoteCurrency"`
	BaseMinSize     core.Number `json:"baseMinSize"`
	BaseMaxSize     core.Number `json:"baseMaxSize"`
	QuoteMinSize    core.Number `json:"quoteMinSize"`
	QuoteMaxSize    core.Number `json:"quoteMaxSize"`
	BaseIncrement   core.Number `json:"baseIncrement"`
	QuoteIncrement  core.Number `json:"quoteIncrement"`
	PriceIncrement  core.Number `json:"priceIncrement"`
	IsMarginEnabled bool        `json:"isMarginEnabled"`
	EnableTrading   bool        `json:"enableTrading"`
}

type ticker struct {
	Symbol       string      `json:"symbol"`
	Buy          core.Number `json:"buy"`
	Sell         core.Number `json:"sell"`
	ChangeRate   core.Number `json:"changeRate"`
	ChangePrice  core.Number `json:"changePrice"`
	High         core.Number `json:"high"`
	Low          core.Number `json:"low"`
	Vol          core.Number `json:"vol"`
	VolValue     core.Number `json:"volValue"`
	Last         core.Number `json:"last"`
	AveragePrice core.Number `json:"averagePrice"`
	// Time is only present on market/stats.
	Time int64 `json:"time"`
}

type allTickers struct {
	Time   int64    `json:"time"`
	Ticker []ticker `json:"ticker"`
}

type account struct {
	ID        string      `json:"id"`
	Currency  string      `json:"currency"`
	Type      string      `json:"type"`
	Balance   core.Number `json:"balance"`
	Available core.Number `json:"available"`
	Holds     core.Number `json:"holds"`
}

type orderPage struct {
	CurrentPage int     `json:"currentPage"`
	PageSize    int     `json:"pageSize"`
	TotalNum    int     `json:"totalNum"`
	TotalPage   int     `json:"totalPage"`
	Items       []order `json:"items"`
}

type order struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Type        string      `json:"type"`
	Side        string      `json:"side"`
	Price       core.Number `json:"price"`
	Size        core.Number `json:"size"`
	Funds       core.Number `json:"funds"`
	DealFunds   core.Number `json:"dealFunds"`
	DealSize    core.Number `json:"dealSize"`
	Fee         core.Number `json:"fee"`
	FeeCurrency string      `json:"feeCurrency"`
	ClientOid   string      `json:"clientOid"`
	IsActive    bool        `json:"isActive"`
	CancelExist bool        `json:"cancelExist"`
	CreatedAt   int64       `json:"createdAt"`
}

// Normalizer converts KuCoin payloads to canonical types.
type Normalizer struct {
	currencies *currency.Canonicalizer
}

func NewNormalizer() *Normalizer {
	return &Normalizer{currencies: currency.New(commonCurrencies)}
}

func orUnbounded(d apd.Decimal) apd.Decimal {
	if d.IsZero() {
		return core.Unbounded()
	}
	return d
}

// NormalizeMarket converts a symbols entry. Amount limits come from the
// base size bounds and cost limits from the quote size bounds.
func (n *Normalizer) NormalizeMarket(s *symbol) *core.Market {
	base, quote := n.currencies.Pair(s.BaseCurrency, s.QuoteCurrency)
	m := core.NewMarket(s.Symbol, s.BaseCurrency, s.QuoteCurrency, base, quote)
	m.Active = s.EnableTrading
	m.Margin = s.IsMarginEnabled
	m.AmountPrecision = core.PrecisionFromStep(s.BaseIncrement.Dec())
	m.PricePrecision = core.PrecisionFromStep(s.PriceIncrement.Dec())
	m.AmountMin = s.BaseMinSize.Dec()
	m.AmountMax = orUnbounded(s.BaseMaxSize.Dec())
	m.PriceMin = s.PriceIncrement.Dec()
	m.CostMin = s.QuoteMinSize.Dec()
	m.CostMax = orUnbounded(s.QuoteMaxSize.Dec())
	m.FeeMaker = feeRate
	m.FeeTaker = feeRate
	m.URL = "https://trade.kucoin.com/trade/" + s.Symbol
	m.Info = s
	return m
}

func (n *Normalizer) NormalizeMarkets(symbols []symbol) []*core.Market {
	markets := make([]*core.Market, 0, len(symbols))
	for i := range symbols {
		markets = append(markets, n.NormalizeMarket(&symbols[i]))
	}
	return markets
}

// NormalizeTicker converts a ticker for a resolved market. changePrice is
// the absolute 24h change, so the open is derived from the last price.
func (n *Normalizer) NormalizeTicker(data *ticker, m *core.Market, timestamp int64) *core.Ticker {
	last := data.Last.Dec()
	change := data.ChangePrice.Dec()
	return &core.Ticker{
		Symbol:      m.Symbol(),
		Timestamp:   timestamp,
		High:        data.High.Dec(),
		Low:         data.Low.Dec(),
		Bid:         data.Buy.Dec(),
		Ask:         data.Sell.Dec(),
		Open:        core.Sub(last, change),
		Last:        last,
		Close:       last,
		Change:      change,
		Percentage:  core.Mul(data.ChangeRate.Dec(), hundred),
		Average:     data.AveragePrice.Dec(),
		BaseVolume:  data.Vol.Dec(),
		QuoteVolume: data.VolValue.Dec(),
		Info:        data,
	}
}

// NormalizeBalances sums trade accounts per currency.
func (n *Normalizer) NormalizeBalances(accounts []account) core.Balances {
	balances := make(core.Balances, len(accounts))
	for _, a := range accounts {
		code := n.currencies.Canonicalize(a.Currency)
		prev := balances[code]
		balances[code] = core.BalanceAccount{
			Free:  core.Add(prev.Free, a.Available.Dec()),
			Total: core.Add(prev.Total, a.Balance.Dec()),
		}
	}
	return balances
}

// NormalizeOrder converts an order for a resolved market.
func (n *Normalizer) NormalizeOrder(data *order, m *core.Market) *core.Order {
	side, _ := core.ParseOrderSide(data.Side)
	o := &core.Order{
		ID:          data.ID,
		ClientID:    data.ClientOid,
		Timestamp:   data.CreatedAt,
		Symbol:      m.Symbol(),
		Type:        core.ParseOrderType(data.Type),
		Side:        side,
		Status:      parseOrderStatus(data.IsActive, data.CancelExist),
		Price:       data.Price.Dec(),
		Cost:        data.DealFunds.Dec(),
		FeeCost:     data.Fee.Dec(),
		FeeCurrency: n.currencies.Canonicalize(data.FeeCurrency),
		Info:        data,
	}
	o.FillAmounts(data.Size.Dec(), data.DealSize.Dec())
	if !o.Filled.IsZero() {
		o.Average = core.Quo(o.Cost, o.Filled)
	}
	return o
}

func parseOrderStatus(active, cancelled bool) core.OrderStatus {
	switch {
	case active:
		return core.StatusOpen
	case cancelled:
		return core.StatusCanceled
	}
	return core.StatusClosed
}
