package kraken

import (
	"strings"

	"tukar/pkg/core"
	"tukar/pkg/currency"
)

var commonCurrencies = map[string]string{
	"LUNA": "LUNC",
	"UST":  "USTC",
	"XBT":  "BTC",
	"XDG":  "DOGE",
}

var (
	feeTaker = core.MustDecimal("0.0026")
	feeMaker = core.MustDecimal("0.0016")
)

type assetPair struct {
	Altname      string      `json:"altname"`
	Wsname       string      `json:"wsname"`
	Base         string      `json:"base"`
	Quote        string      `json:"quote"`
	PairDecimals int         `json:"pair_decimals"`
	LotDecimals  int         `json:"lot_decimals"`
	OrderMin     core.Number `json:"ordermin"`
	CostMin      core.Number `json:"costmin"`
	TickSize     core.Number `json:"tick_size"`
	Status       string      `json:"status"`
	LeverageBuy  []int       `json:"leverage_buy"`
}

// ticker fields are [price, whole lot volume, lot volume] for a and b,
// [price, lot volume] for c, and [today, last 24h] for v, p, l and h.
type ticker struct {
	A []core.Number `json:"a"`
	B []core.Number `json:"b"`
	C []core.Number `json:"c"`
	V []core.Number `json:"v"`
	P []core.Number `json:"p"`
	L []core.Number `json:"l"`
	H []core.Number `json:"h"`
	O core.Number   `json:"o"`
}

type assetBalance struct {
	Balance   core.Number `json:"balance"`
	HoldTrade core.Number `json:"hold_trade"`
}

// Normalizer converts Kraken payloads to canonical types.
type Normalizer struct {
	currencies *currency.Canonicalizer
}

func NewNormalizer() *Normalizer {
	return &Normalizer{currencies: currency.New(commonCurrencies)}
}

// legacyAssets are the asset codes Kraken still reports with an X (crypto)
// or Z (fiat) class prefix.
var legacyAssets = map[string]bool{
	"XXBT": true, "XETH": true, "XETC": true, "XLTC": true, "XXRP": true, "XXLM": true,
	"XXMR": true, "XZEC": true, "XREP": true, "XMLN": true, "XXDG": true,
	"ZUSD": true, "ZEUR": true, "ZGBP": true, "ZCAD": true, "ZJPY": true, "ZAUD": true, "ZCHF": true,
}

// assetCode strips the class prefix from legacy asset codes, e.g. XXBT.
func assetCode(code string) string {
	if legacyAssets[code] {
		return code[1:]
	}
	return code
}

func at(values []core.Number, i int) core.Number {
	if i < len(values) {
		return values[i]
	}
	return core.Number{}
}

// NormalizeMarket converts an AssetPairs entry. Dark pool pairs (".d") are
// not tradable on the public book and yield nil.
func (n *Normalizer) NormalizeMarket(id string, p *assetPair) *core.Market {
	if strings.HasSuffix(id, ".d") {
		return nil
	}
	baseCode, quoteCode := assetCode(p.Base), assetCode(p.Quote)
	if b, q, ok := strings.Cut(p.Wsname, "/"); ok {
		baseCode, quoteCode = b, q
	}
	base, quote := n.currencies.Pair(baseCode, quoteCode)

	m := core.NewMarket(id, p.Base, p.Quote, base, quote)
	m.Active = p.Status == "" || p.Status == "online"
	m.Margin = len(p.LeverageBuy) > 0
	m.AmountPrecision = p.LotDecimals
	m.PricePrecision = p.PairDecimals
	m.AmountMin = core.Pow10(-p.LotDecimals)
	if !p.OrderMin.IsZero() {
		m.AmountMin = p.OrderMin.Dec()
	}
	m.PriceMin = core.Pow10(-p.PairDecimals)
	if !p.TickSize.IsZero() {
		m.PriceMin = p.TickSize.Dec()
	}
	m.CostMin = p.CostMin.Dec()
	m.FeeTaker = feeTaker
	m.FeeMaker = feeMaker
	m.URL = "https://trade.kraken.com/charts/KRAKEN:" + baseCode + "-" + quoteCode
	m.Info = p
	return m
}

// NormalizeMarkets converts the AssetPairs result.
func (n *Normalizer) NormalizeMarkets(pairs map[string]assetPair) []*core.Market {
	markets := make([]*core.Market, 0, len(pairs))
	for id, p := range pairs {
		if m := n.NormalizeMarket(id, &p); m != nil {
			markets = append(markets, m)
		}
	}
	return markets
}

// NormalizeTicker converts a Ticker entry. Kraken sends no timestamp, so
// the caller supplies the receive time. quoteVolume is approximated as the
// 24h base volume times the 24h vwap.
func (n *Normalizer) NormalizeTicker(data *ticker, m *core.Market, timestamp int64) *core.Ticker {
	last := at(data.C, 0).Dec()
	vwap := at(data.P, 1).Dec()
	baseVolume := at(data.V, 1).Dec()
	return &core.Ticker{
		Symbol:      m.Symbol(),
		Timestamp:   timestamp,
		High:        at(data.H, 1).Dec(),
		Low:         at(data.L, 1).Dec(),
		Bid:         at(data.B, 0).Dec(),
		BidVolume:   at(data.B, 2).Dec(),
		Ask:         at(data.A, 0).Dec(),
		AskVolume:   at(data.A, 2).Dec(),
		Vwap:        vwap,
		Open:        data.O.Dec(),
		Last:        last,
		Close:       last,
		BaseVolume:  baseVolume,
		QuoteVolume: core.Mul(baseVolume, vwap),
		Info:        data,
	}
}

// NormalizeBalances converts BalanceEx. Earn and staking sub-balances,
// whose codes carry a dotted suffix such as XBT.M, are left out.
func (n *Normalizer) NormalizeBalances(data map[string]assetBalance) core.Balances {
	balances := make(core.Balances, len(data))
	for code, b := range data {
		if strings.Contains(code, ".") {
			continue
		}
		free := core.Sub(b.Balance.Dec(), b.HoldTrade.Dec())
		balances[n.currencies.Canonicalize(assetCode(code))] = core.NewBalanceAccount(free, b.HoldTrade.Dec())
	}
	return balances
}
