package binance

import (
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"tukar/pkg/core"
	"tukar/pkg/currency"
)

// commonCurrencies maps Binance asset codes that differ from the canonical ones.
var commonCurrencies = map[string]string{
	"YOYO": "YOYOW",
}

// feeRate is the default maker and taker fee, 0.1%.
var feeRate = core.MustDecimal("0.001")

type serverTime struct {
	ServerTime int64 `json:"serverTime"`
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol                 string         `json:"symbol"`
	Status                 string         `json:"status"`
	BaseAsset              string         `json:"baseAsset"`
	QuoteAsset             string         `json:"quoteAsset"`
	BaseAssetPrecision     int            `json:"baseAssetPrecision"`
	QuotePrecision         int            `json:"quotePrecision"`
	IsMarginTradingAllowed bool           `json:"isMarginTradingAllowed"`
	Filters                []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string      `json:"filterType"`
	MinPrice    core.Number `json:"minPrice"`
	MaxPrice    core.Number `json:"maxPrice"`
	TickSize    core.Number `json:"tickSize"`
	MinQty      core.Number `json:"minQty"`
	MaxQty      core.Number `json:"maxQty"`
	StepSize    core.Number `json:"stepSize"`
	MinNotional core.Number `json:"minNotional"`
	MaxNotional core.Number `json:"maxNotional"`
}

type ticker24h struct {
	Symbol             string      `json:"symbol"`
	PriceChange        core.Number `json:"priceChange"`
	PriceChangePercent core.Number `json:"priceChangePercent"`
	WeightedAvgPrice   core.Number `json:"weightedAvgPrice"`
	PrevClosePrice     core.Number `json:"prevClosePrice"`
	LastPrice          core.Number `json:"lastPrice"`
	BidPrice           core.Number `json:"bidPrice"`
	BidQty             core.Number `json:"bidQty"`
	AskPrice           core.Number `json:"askPrice"`
	AskQty             core.Number `json:"askQty"`
	OpenPrice          core.Number `json:"openPrice"`
	HighPrice          core.Number `json:"highPrice"`
	LowPrice           core.Number `json:"lowPrice"`
	Volume             core.Number `json:"volume"`
	QuoteVolume        core.Number `json:"quoteVolume"`
	CloseTime          int64       `json:"closeTime"`
}

type accountInfo struct {
	Balances []assetBalance `json:"balances"`
}

type assetBalance struct {
	Asset  string      `json:"asset"`
	Free   core.Number `json:"free"`
	Locked core.Number `json:"locked"`
}

type order struct {
	Symbol              string      `json:"symbol"`
	OrderID             int64       `json:"orderId"`
	ClientOrderID       string      `json:"clientOrderId"`
	Price               core.Number `json:"price"`
	OrigQty             core.Number `json:"origQty"`
	ExecutedQty         core.Number `json:"executedQty"`
	CummulativeQuoteQty core.Number `json:"cummulativeQuoteQty"`
	Status              string      `json:"status"`
	Type                string      `json:"type"`
	Side                string      `json:"side"`
	Time                int64       `json:"time"`
	TransactTime        int64       `json:"transactTime"`
	UpdateTime          int64       `json:"updateTime"`
}

type myTrade struct {
	ID              int64       `json:"id"`
	OrderID         int64       `json:"orderId"`
	Symbol          string      `json:"symbol"`
	Price           core.Number `json:"price"`
	Qty             core.Number `json:"qty"`
	QuoteQty        core.Number `json:"quoteQty"`
	Commission      core.Number `json:"commission"`
	CommissionAsset string      `json:"commissionAsset"`
	Time            int64       `json:"time"`
	IsBuyer         bool        `json:"isBuyer"`
	IsMaker         bool        `json:"isMaker"`
}

type orderAck struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
}

// Normalizer converts Binance payloads to canonical types.
type Normalizer struct {
	currencies *currency.Canonicalizer
}

// NewNormalizer creates a Normalizer with the Binance currency table.
func NewNormalizer() *Normalizer {
	return &Normalizer{currencies: currency.New(commonCurrencies)}
}

// orUnbounded treats a zero limit as "no limit", which is how Binance reports it.
func orUnbounded(d apd.Decimal) apd.Decimal {
	if d.IsZero() {
		return core.Unbounded()
	}
	return d
}

// NormalizeMarket converts one exchangeInfo symbol.
func (n *Normalizer) NormalizeMarket(s *symbolInfo) *core.Market {
	base, quote := n.currencies.Pair(s.BaseAsset, s.QuoteAsset)
	m := core.NewMarket(s.Symbol, s.BaseAsset, s.QuoteAsset, base, quote)
	m.Active = s.Status == "TRADING"
	m.Margin = s.IsMarginTradingAllowed
	m.PricePrecision = s.QuotePrecision
	m.AmountPrecision = s.BaseAssetPrecision
	m.FeeMaker = feeRate
	m.FeeTaker = feeRate
	m.URL = "https://www.binance.com/en/trade/" + s.BaseAsset + "_" + s.QuoteAsset
	m.Info = s

	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			m.PriceMin = f.MinPrice.Dec()
			m.PriceMax = orUnbounded(f.MaxPrice.Dec())
			if !f.TickSize.IsZero() {
				m.PricePrecision = core.PrecisionFromStep(f.TickSize.Dec())
			}
		case "LOT_SIZE":
			m.AmountMin = f.MinQty.Dec()
			m.AmountMax = orUnbounded(f.MaxQty.Dec())
			if !f.StepSize.IsZero() {
				m.AmountPrecision = core.PrecisionFromStep(f.StepSize.Dec())
			}
		case "MIN_NOTIONAL":
			m.CostMin = f.MinNotional.Dec()
		case "NOTIONAL":
			m.CostMin = f.MinNotional.Dec()
			m.CostMax = orUnbounded(f.MaxNotional.Dec())
		}
	}
	return m
}

// NormalizeMarkets converts the exchangeInfo symbol list.
func (n *Normalizer) NormalizeMarkets(info *exchangeInfo) []*core.Market {
	markets := make([]*core.Market, 0, len(info.Symbols))
	for i := range info.Symbols {
		markets = append(markets, n.NormalizeMarket(&info.Symbols[i]))
	}
	return markets
}

// NormalizeTicker converts a 24hr ticker for a resolved market.
func (n *Normalizer) NormalizeTicker(data *ticker24h, m *core.Market) *core.Ticker {
	return &core.Ticker{
		Symbol:        m.Symbol(),
		Timestamp:     data.CloseTime,
		High:          data.HighPrice.Dec(),
		Low:           data.LowPrice.Dec(),
		Bid:           data.BidPrice.Dec(),
		BidVolume:     data.BidQty.Dec(),
		Ask:           data.AskPrice.Dec(),
		AskVolume:     data.AskQty.Dec(),
		Vwap:          data.WeightedAvgPrice.Dec(),
		Open:          data.OpenPrice.Dec(),
		Last:          data.LastPrice.Dec(),
		Close:         data.LastPrice.Dec(),
		PreviousClose: data.PrevClosePrice.Dec(),
		Change:        data.PriceChange.Dec(),
		Percentage:    data.PriceChangePercent.Dec(),
		BaseVolume:    data.Volume.Dec(),
		QuoteVolume:   data.QuoteVolume.Dec(),
		Info:          data,
	}
}

// NormalizeBalances converts the account balances keyed by canonical currency.
func (n *Normalizer) NormalizeBalances(account *accountInfo) core.Balances {
	balances := make(core.Balances, len(account.Balances))
	for _, b := range account.Balances {
		balances[n.currencies.Canonicalize(b.Asset)] = core.NewBalanceAccount(b.Free.Dec(), b.Locked.Dec())
	}
	return balances
}

// NormalizeOrder converts an order for a resolved market.
func (n *Normalizer) NormalizeOrder(data *order, m *core.Market) *core.Order {
	side, _ := core.ParseOrderSide(data.Side)
	o := &core.Order{
		ID:        strconv.FormatInt(data.OrderID, 10),
		ClientID:  data.ClientOrderID,
		Timestamp: data.Time,
		Symbol:    m.Symbol(),
		Type:      parseOrderType(data.Type),
		Side:      side,
		Status:    parseOrderStatus(data.Status),
		Price:     data.Price.Dec(),
		Cost:      data.CummulativeQuoteQty.Dec(),
		Info:      data,
	}
	if o.Timestamp == 0 {
		o.Timestamp = data.TransactTime
	}
	o.FillAmounts(data.OrigQty.Dec(), data.ExecutedQty.Dec())
	if !o.Filled.IsZero() {
		o.Average = core.Quo(o.Cost, o.Filled)
		o.LastTradeTimestamp = data.UpdateTime
	}
	return o
}

// NormalizeMyTrade converts an account fill for a resolved market.
func (n *Normalizer) NormalizeMyTrade(data *myTrade, m *core.Market) *core.MyTrade {
	t := &core.MyTrade{
		ID:           strconv.FormatInt(data.ID, 10),
		Timestamp:    data.Time,
		Symbol:       m.Symbol(),
		OrderID:      strconv.FormatInt(data.OrderID, 10),
		Side:         core.SideSell,
		TakerOrMaker: core.Taker,
		Price:        data.Price.Dec(),
		Amount:       data.Qty.Dec(),
		FeeCost:      data.Commission.Dec(),
		FeeCurrency:  n.currencies.Canonicalize(data.CommissionAsset),
		Info:         data,
	}
	if data.IsBuyer {
		t.Side = core.SideBuy
	}
	if data.IsMaker {
		t.TakerOrMaker = core.Maker
	}
	switch t.FeeCurrency {
	case m.Quote:
		t.FeeRate = core.Quo(t.FeeCost, t.Cost())
	case m.Base:
		t.FeeRate = core.Quo(t.FeeCost, t.Amount)
	}
	return t
}

// parseOrderStatus maps Binance statuses. Unknown values stay Open.
func parseOrderStatus(s string) core.OrderStatus {
	switch s {
	case "NEW", "PARTIALLY_FILLED", "PENDING_CANCEL", "PENDING_NEW":
		return core.StatusOpen
	case "FILLED":
		return core.StatusClosed
	case "CANCELED", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return core.StatusCanceled
	}
	return core.StatusOpen
}

func parseOrderType(s string) core.OrderType {
	switch s {
	case "LIMIT", "LIMIT_MAKER":
		return core.TypeLimit
	case "MARKET":
		return core.TypeMarket
	}
	return core.TypeOther
}
