package bitfinex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"tukar/pkg/core"
	"tukar/pkg/currency"
)

var commonCurrencies = map[string]string{
	"ABS":      "ABYSS",
	"AIO":      "AION",
	"ALG":      "ALGO",
	"AMP":      "AMPL",
	"ATM":      "ATMI",
	"ATO":      "ATOM",
	"BAB":      "BCH",
	"CTX":      "CTXC",
	"DAD":      "DADI",
	"DAT":      "DATA",
	"DOG":      "MDOGE",
	"DSH":      "DASH",
	"EDO":      "PNT",
	"EUS":      "EURS",
	"EUT":      "EURT",
	"GSD":      "GUSD",
	"HOT":      "Hydro Protocol",
	"IOS":      "IOST",
	"IOT":      "IOTA",
	"IQX":      "IQ",
	"LUNA":     "LUNC",
	"LUNA2":    "LUNA",
	"MIT":      "MITH",
	"MNA":      "MANA",
	"NCA":      "NCASH",
	"ORS":      "ORS Group",
	"POY":      "POLY",
	"QSH":      "QASH",
	"QTM":      "QTUM",
	"SEE":      "SEER",
	"SNG":      "SNGLS",
	"SPK":      "SPANK",
	"STJ":      "STORJ",
	"TERRAUST": "USTC",
	"TSD":      "TUSD",
	"UDC":      "USDC",
	"UST":      "USDT",
	"UTN":      "UTNP",
	"VSY":      "VSYS",
	"WAX":      "WAXP",
	"WBT":      "WBTC",
	"WHBT":     "WBT",
	"XCH":      "XCHF",
	"YGG":      "YEED",
	"YYW":      "YOYOW",
	"ZBT":      "ZB",
}

var (
	feeMaker = core.MustDecimal("0.001")
	feeTaker = core.MustDecimal("0.002")
)

type symbolDetails struct {
	Pair             string      `json:"pair"`
	PricePrecision   int         `json:"price_precision"`
	MinimumOrderSize core.Number `json:"minimum_order_size"`
	MaximumOrderSize core.Number `json:"maximum_order_size"`
	Margin           bool        `json:"margin"`
}

type ticker struct {
	Mid       core.Number `json:"mid"`
	Bid       core.Number `json:"bid"`
	Ask       core.Number `json:"ask"`
	LastPrice core.Number `json:"last_price"`
	Low       core.Number `json:"low"`
	High      core.Number `json:"high"`
	Volume    core.Number `json:"volume"`
	Timestamp string      `json:"timestamp"`
	Pair      string      `json:"pair"`
}

type wallet struct {
	Type      string      `json:"type"`
	Currency  string      `json:"currency"`
	Amount    core.Number `json:"amount"`
	Available core.Number `json:"available"`
}

// row reads positional v2 fields, remembering the first decode failure.
type row struct {
	values []any
	err    error
}

func (r *row) fail(i int, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("field %d: %w", i, err)
	}
}

func (r *row) text(i int) string {
	if i >= len(r.values) {
		return ""
	}
	s, _ := r.values[i].(string)
	return s
}

func (r *row) decimal(i int) apd.Decimal {
	if i >= len(r.values) {
		return apd.Decimal{}
	}
	d, err := core.DecimalOf(r.values[i])
	if err != nil {
		r.fail(i, err)
	}
	return d
}

func (r *row) integer(i int) int64 {
	if i >= len(r.values) {
		return 0
	}
	n, err := core.Int64Of(r.values[i])
	if err != nil {
		r.fail(i, err)
	}
	return n
}

// Normalizer converts Bitfinex payloads to canonical types.
type Normalizer struct {
	currencies *currency.Canonicalizer
}

func NewNormalizer() *Normalizer {
	return &Normalizer{currencies: currency.New(commonCurrencies)}
}

// splitPair splits "BTCUSD" into three letter halves and longer codes on
// the colon Bitfinex inserts, e.g. "TESTBTC:TESTUSD".
func splitPair(id string) (baseID, quoteID string, ok bool) {
	if b, q, found := strings.Cut(id, ":"); found {
		return b, q, b != "" && q != ""
	}
	if len(id) != 6 {
		return "", "", false
	}
	return id[:3], id[3:], true
}

// NormalizeMarket converts a symbols_details entry. Price bounds follow
// price_precision, so the cost floor is the smallest order at the lowest
// price.
func (n *Normalizer) NormalizeMarket(d *symbolDetails) *core.Market {
	id := strings.ToUpper(d.Pair)
	baseID, quoteID, ok := splitPair(id)
	if !ok {
		return nil
	}
	base, quote := n.currencies.Pair(baseID, quoteID)
	m := core.NewMarket(id, baseID, quoteID, base, quote)
	m.Margin = d.Margin
	m.PricePrecision = d.PricePrecision
	m.AmountMin = d.MinimumOrderSize.Dec()
	if !d.MaximumOrderSize.IsZero() {
		m.AmountMax = d.MaximumOrderSize.Dec()
	}
	m.PriceMin = core.Pow10(-d.PricePrecision)
	m.PriceMax = core.Pow10(d.PricePrecision)
	m.CostMin = core.Mul(m.AmountMin, m.PriceMin)
	m.FeeMaker = feeMaker
	m.FeeTaker = feeTaker
	m.URL = "https://trading.bitfinex.com/t/" + baseID + ":" + quoteID
	m.Info = d
	return m
}

// NormalizeMarkets keeps the details of pairs listed by /v1/symbols.
func (n *Normalizer) NormalizeMarkets(listed []string, details []symbolDetails) []*core.Market {
	keep := make(map[string]bool, len(listed))
	for _, pair := range listed {
		keep[strings.ToLower(pair)] = true
	}
	markets := make([]*core.Market, 0, len(details))
	for i := range details {
		if !keep[strings.ToLower(details[i].Pair)] {
			continue
		}
		if m := n.NormalizeMarket(&details[i]); m != nil {
			markets = append(markets, m)
		}
	}
	return markets
}

// secondsToMillis converts "1583233141.23957302" to epoch milliseconds.
func secondsToMillis(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	frac = (frac + "000")[:3]
	ms, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}
	return sec*1000 + ms, nil
}

// NormalizeTicker converts a v1 ticker. Bitfinex reports no quote volume;
// it is approximated as volume times the mid price.
func (n *Normalizer) NormalizeTicker(data *ticker, m *core.Market) (*core.Ticker, error) {
	ts, err := secondsToMillis(data.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("ticker timestamp %q: %w", data.Timestamp, err)
	}
	last := data.LastPrice.Dec()
	return &core.Ticker{
		Symbol:      m.Symbol(),
		Timestamp:   ts,
		High:        data.High.Dec(),
		Low:         data.Low.Dec(),
		Bid:         data.Bid.Dec(),
		Ask:         data.Ask.Dec(),
		Last:        last,
		Close:       last,
		Average:     data.Mid.Dec(),
		BaseVolume:  data.Volume.Dec(),
		QuoteVolume: core.Mul(data.Volume.Dec(), data.Mid.Dec()),
		Info:        data,
	}, nil
}

// NormalizeBalances keeps exchange wallets; margin and funding wallets are
// not spot balances.
func (n *Normalizer) NormalizeBalances(wallets []wallet) core.Balances {
	balances := make(core.Balances, len(wallets))
	for _, w := range wallets {
		if w.Type != "exchange" {
			continue
		}
		balances[n.currencies.Canonicalize(w.Currency)] = core.BalanceAccount{
			Free:  w.Available.Dec(),
			Total: w.Amount.Dec(),
		}
	}
	return balances
}

// pairID strips the trading prefix from a v2 symbol such as "tBTCUSD".
func pairID(symbol string) string {
	return strings.TrimPrefix(symbol, "t")
}

func abs(d apd.Decimal) apd.Decimal {
	var out apd.Decimal
	out.Abs(&d)
	return out
}

// NormalizeOrder converts a v2 order row:
// [ID, GID, CID, SYMBOL, MTS_CREATE, MTS_UPDATE, AMOUNT, AMOUNT_ORIG, TYPE,
// TYPE_PREV, MTS_TIF, _, FLAGS, STATUS, _, _, PRICE, PRICE_AVG, ...].
// AMOUNT is what remains; its sign gives the side.
func (n *Normalizer) NormalizeOrder(values []any, m *core.Market) (*core.Order, error) {
	r := &row{values: values}
	orig := r.decimal(7)
	side := core.SideBuy
	if orig.Sign() < 0 {
		side = core.SideSell
	}
	o := &core.Order{
		ID:        strconv.FormatInt(r.integer(0), 10),
		Timestamp: r.integer(4),
		Symbol:    m.Symbol(),
		Type:      core.ParseOrderType(r.text(8)),
		Side:      side,
		Status:    parseOrderStatus(r.text(13)),
		Price:     r.decimal(16),
		Average:   r.decimal(17),
		Info:      values,
	}
	if cid := r.integer(2); cid != 0 {
		o.ClientID = strconv.FormatInt(cid, 10)
	}
	amount := abs(orig)
	remaining := abs(r.decimal(6))
	o.FillAmounts(amount, core.Sub(amount, remaining))
	if !o.Filled.IsZero() {
		o.LastTradeTimestamp = r.integer(5)
		if o.Average.IsZero() {
			o.Average = o.Price
		}
		o.Cost = core.Mul(o.Average, o.Filled)
	}
	if r.err != nil {
		return nil, r.err
	}
	return o, nil
}

// NormalizeMyTrade converts a v2 trade row:
// [ID, SYMBOL, MTS, ORDER_ID, EXEC_AMOUNT, EXEC_PRICE, ORDER_TYPE,
// ORDER_PRICE, MAKER, FEE, FEE_CURRENCY]. Fees are reported negative.
func (n *Normalizer) NormalizeMyTrade(values []any, m *core.Market) (*core.MyTrade, error) {
	r := &row{values: values}
	exec := r.decimal(4)
	t := &core.MyTrade{
		ID:           strconv.FormatInt(r.integer(0), 10),
		Timestamp:    r.integer(2),
		Symbol:       m.Symbol(),
		OrderID:      strconv.FormatInt(r.integer(3), 10),
		Side:         core.SideBuy,
		TakerOrMaker: core.Taker,
		Price:        r.decimal(5),
		Amount:       abs(exec),
		FeeCost:      abs(r.decimal(9)),
		FeeCurrency:  n.currencies.Canonicalize(r.text(10)),
		Info:         values,
	}
	if exec.Sign() < 0 {
		t.Side = core.SideSell
	}
	if r.integer(8) == 1 {
		t.TakerOrMaker = core.Maker
	}
	if t.FeeCurrency == m.Base {
		t.FeeRate = core.Quo(t.FeeCost, t.Amount)
	} else {
		t.FeeRate = core.Quo(t.FeeCost, t.Cost())
	}
	if r.err != nil {
		return nil, r.err
	}
	return t, nil
}

// parseOrderStatus maps v2 statuses, which carry fill details after the
// keyword, e.g. "EXECUTED @ 107.6(-0.2)". Unknown values stay Open.
func parseOrderStatus(s string) core.OrderStatus {
	switch {
	case strings.HasPrefix(s, "ACTIVE"), strings.HasPrefix(s, "PARTIALLY FILLED"):
		return core.StatusOpen
	case strings.HasPrefix(s, "EXECUTED"):
		return core.StatusClosed
	case strings.Contains(s, "CANCELED"),
		strings.HasPrefix(s, "INSUFFICIENT"),
		strings.HasPrefix(s, "RSN_"):
		return core.StatusCanceled
	}
	return core.StatusOpen
}
