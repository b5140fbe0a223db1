package exmo

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"tukar/pkg/core"
	"tukar/pkg/currency"
)

var commonCurrencies = map[string]string{}

// feeRate is the flat maker and taker fee, 0.4%, used when pair_settings
// carries no commission fields.
var feeRate = core.MustDecimal("0.004")

var hundred = core.DecimalFromInt64(100)

const defaultPrecision = 8

type pairSettings struct {
	MinQuantity            core.Number `json:"min_quantity"`
	MaxQuantity            core.Number `json:"max_quantity"`
	MinPrice               core.Number `json:"min_price"`
	MaxPrice               core.Number `json:"max_price"`
	MinAmount              core.Number `json:"min_amount"`
	MaxAmount              core.Number `json:"max_amount"`
	PricePrecision         int         `json:"price_precision"`
	CommissionTakerPercent core.Number `json:"commission_taker_percent"`
	CommissionMakerPercent core.Number `json:"commission_maker_percent"`
}

type ticker struct {
	BuyPrice  core.Number `json:"buy_price"`
	SellPrice core.Number `json:"sell_price"`
	LastTrade core.Number `json:"last_trade"`
	High      core.Number `json:"high"`
	Low       core.Number `json:"low"`
	Avg       core.Number `json:"avg"`
	Vol       core.Number `json:"vol"`
	VolCurr   core.Number `json:"vol_curr"`
	Updated   int64       `json:"updated"`
}

type userInfo struct {
	UID      int64                  `json:"uid"`
	Balances map[string]core.Number `json:"balances"`
	Reserved map[string]core.Number `json:"reserved"`
}

type openOrder struct {
	OrderID  string      `json:"order_id"`
	Created  string      `json:"created"`
	Type     string      `json:"type"`
	Pair     string      `json:"pair"`
	Quantity core.Number `json:"quantity"`
	Price    core.Number `json:"price"`
	Amount   core.Number `json:"amount"`
}

type userTrade struct {
	TradeID            int64       `json:"trade_id"`
	Date               int64       `json:"date"`
	Type               string      `json:"type"`
	Pair               string      `json:"pair"`
	OrderID            int64       `json:"order_id"`
	Quantity           core.Number `json:"quantity"`
	Price              core.Number `json:"price"`
	Amount             core.Number `json:"amount"`
	ExecType           string      `json:"exec_type"`
	CommissionAmount   core.Number `json:"commission_amount"`
	CommissionCurrency string      `json:"commission_currency"`
	CommissionPercent  core.Number `json:"commission_percent"`
}

// Normalizer converts EXMO payloads to canonical types.
type Normalizer struct {
	currencies *currency.Canonicalizer
}

func NewNormalizer() *Normalizer {
	return &Normalizer{currencies: currency.New(commonCurrencies)}
}

// splitPair splits an EXMO pair id such as "BTC_USD".
func splitPair(id string) (baseID, quoteID string, ok bool) {
	baseID, quoteID, ok = strings.Cut(id, "_")
	return baseID, quoteID, ok && baseID != "" && quoteID != ""
}

func orUnbounded(d apd.Decimal) apd.Decimal {
	if d.IsZero() {
		return core.Unbounded()
	}
	return d
}

// NormalizeMarket converts one pair_settings entry. It returns nil for ids
// that are not BASE_QUOTE pairs.
func (n *Normalizer) NormalizeMarket(id string, s *pairSettings) *core.Market {
	baseID, quoteID, ok := splitPair(id)
	if !ok {
		return nil
	}
	base, quote := n.currencies.Pair(baseID, quoteID)
	m := core.NewMarket(id, baseID, quoteID, base, quote)
	m.PricePrecision = defaultPrecision
	if s.PricePrecision > 0 {
		m.PricePrecision = s.PricePrecision
	}
	m.AmountPrecision = defaultPrecision
	m.AmountMin = s.MinQuantity.Dec()
	m.AmountMax = orUnbounded(s.MaxQuantity.Dec())
	m.PriceMin = s.MinPrice.Dec()
	m.PriceMax = orUnbounded(s.MaxPrice.Dec())
	m.CostMin = s.MinAmount.Dec()
	m.CostMax = orUnbounded(s.MaxAmount.Dec())
	m.FeeMaker = feeRate
	m.FeeTaker = feeRate
	if !s.CommissionMakerPercent.IsZero() {
		m.FeeMaker = core.Quo(s.CommissionMakerPercent.Dec(), hundred)
	}
	if !s.CommissionTakerPercent.IsZero() {
		m.FeeTaker = core.Quo(s.CommissionTakerPercent.Dec(), hundred)
	}
	m.URL = "https://exmo.com/en/trade/" + baseID + "_" + quoteID
	m.Info = s
	return m
}

// NormalizeMarkets converts pair_settings, skipping malformed pair ids.
func (n *Normalizer) NormalizeMarkets(settings map[string]pairSettings) []*core.Market {
	markets := make([]*core.Market, 0, len(settings))
	for id, s := range settings {
		if m := n.NormalizeMarket(id, &s); m != nil {
			markets = append(markets, m)
		}
	}
	return markets
}

// NormalizeTicker converts a ticker entry for a resolved market. EXMO
// reports the update time in seconds.
func (n *Normalizer) NormalizeTicker(data *ticker, m *core.Market) *core.Ticker {
	return &core.Ticker{
		Symbol:      m.Symbol(),
		Timestamp:   data.Updated * 1000,
		High:        data.High.Dec(),
		Low:         data.Low.Dec(),
		Bid:         data.BuyPrice.Dec(),
		Ask:         data.SellPrice.Dec(),
		Last:        data.LastTrade.Dec(),
		Close:       data.LastTrade.Dec(),
		Average:     data.Avg.Dec(),
		BaseVolume:  data.Vol.Dec(),
		QuoteVolume: data.VolCurr.Dec(),
		Info:        data,
	}
}

// NormalizeBalances merges the free and reserved maps.
func (n *Normalizer) NormalizeBalances(info *userInfo) core.Balances {
	balances := make(core.Balances, len(info.Balances))
	for code, free := range info.Balances {
		reserved := info.Reserved[code]
		balances[n.currencies.Canonicalize(code)] = core.NewBalanceAccount(free.Dec(), reserved.Dec())
	}
	return balances
}

// NormalizeOpenOrder converts an open order. EXMO only lists resting limit
// orders here, so nothing is filled yet.
func (n *Normalizer) NormalizeOpenOrder(data *openOrder, m *core.Market) *core.Order {
	side, _ := core.ParseOrderSide(data.Type)
	created, _ := core.ParseInt64(data.Created)
	o := &core.Order{
		ID:        data.OrderID,
		Timestamp: created * 1000,
		Symbol:    m.Symbol(),
		Type:      core.TypeLimit,
		Side:      side,
		Status:    core.StatusOpen,
		Price:     data.Price.Dec(),
		Cost:      data.Amount.Dec(),
		Info:      data,
	}
	o.FillAmounts(data.Quantity.Dec(), apd.Decimal{})
	return o
}

// NormalizeMyTrade converts an account trade. When EXMO omits the fee
// currency it falls back to quote for a buy and base for a sell.
func (n *Normalizer) NormalizeMyTrade(data *userTrade, m *core.Market) *core.MyTrade {
	side, _ := core.ParseOrderSide(data.Type)
	t := &core.MyTrade{
		ID:           strconv.FormatInt(data.TradeID, 10),
		Timestamp:    data.Date * 1000,
		Symbol:       m.Symbol(),
		OrderID:      strconv.FormatInt(data.OrderID, 10),
		Side:         side,
		TakerOrMaker: core.Taker,
		Price:        data.Price.Dec(),
		Amount:       data.Quantity.Dec(),
		FeeCost:      data.CommissionAmount.Dec(),
		FeeRate:      core.Quo(data.CommissionPercent.Dec(), hundred),
		Info:         data,
	}
	if data.ExecType == "maker" {
		t.TakerOrMaker = core.Maker
	}
	switch {
	case data.CommissionCurrency != "":
		t.FeeCurrency = n.currencies.Canonicalize(data.CommissionCurrency)
	case side == core.SideBuy:
		t.FeeCurrency = m.Quote
	default:
		t.FeeCurrency = m.Base
	}
	return t
}
