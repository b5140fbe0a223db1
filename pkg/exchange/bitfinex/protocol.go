package bitfinex

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tukar/pkg/auth"
	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

const (
	pathSymbols        = "/v1/symbols"
	pathSymbolsDetails = "/v1/symbols_details"
	pathTickers        = "/v1/tickers"
	pathBalances       = "/v1/balances"
	pathOrders         = "/v2/auth/r/orders"
	pathOrdersHist     = "/v2/auth/r/orders/hist"
	pathTradesHist     = "/v2/auth/r/trades/hist"
	pathOrderSubmit    = "/v2/auth/w/order/submit"

	maxHistoryLimit = 2500
)

// signer picks the v1 payload scheme or the v2 path+nonce scheme.
var signer = auth.SignerFunc(func(req *core.Request, creds *core.Credentials, now time.Time) error {
	if strings.HasPrefix(req.Path, "/v1/") {
		return auth.PayloadSigner{}.Sign(req, creds, now)
	}
	return auth.PathNonceSigner{}.Sign(req, creds, now)
})

func buildSymbolsRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathSymbols)
}

func buildSymbolsDetailsRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathSymbolsDetails)
}

// buildTickersRequest asks for ids, or for every pair when ids is empty.
func buildTickersRequest(ids []string) *core.Request {
	symbols := "ALL"
	if len(ids) > 0 {
		prefixed := make([]string, len(ids))
		for i, id := range ids {
			prefixed[i] = "t" + id
		}
		symbols = strings.Join(prefixed, ",")
	}
	return core.NewRequest(http.MethodGet, pathTickers).SetParam("symbols", symbols)
}

func buildBalancesRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodPost, pathBalances)
}

func buildOrdersRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodPost, pathOrders)
}

func buildHistoryRequest(path string, options *exchange.Options) *core.Request {
	req := core.NewPrivateRequest(http.MethodPost, path)
	if since := options.SinceMillis(); since > 0 {
		req.SetParam("start", since)
	}
	if options.Limit > 0 {
		req.SetParam("limit", min(options.Limit, maxHistoryLimit))
	}
	return req
}

func buildSubmitRequest(m *core.Market, r *exchange.OrderRequest, cid int64) *core.Request {
	amount := r.Amount
	if r.Side == core.SideSell {
		amount.Neg(&amount)
	}
	req := core.NewPrivateRequest(http.MethodPost, pathOrderSubmit)
	req.SetParam("symbol", "t"+m.ID)
	req.SetParam("amount", core.DecimalString(amount))
	req.SetParam("cid", cid)
	switch r.Type {
	case core.TypeMarket:
		req.SetParam("type", "EXCHANGE MARKET")
	default:
		req.SetParam("type", "EXCHANGE LIMIT")
		req.SetParam("price", core.DecimalString(r.Price))
	}
	return req
}

// v1Error is the object v1 returns with a 4xx status.
type v1Error struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// classifyError handles v2 ["error", code, message] arrays, whatever the
// status, and v1 {"message":...} objects on failed responses.
func classifyError(resp *core.Response) *core.ExchangeError {
	text := strings.TrimSpace(resp.Text)
	switch {
	case strings.HasPrefix(text, `["error"`):
		var body []any
		if err := core.LooseJSON.UnmarshalFromString(text, &body); err != nil || len(body) < 3 {
			return nil
		}
		code, _ := core.Int64Of(body[1])
		msg, _ := body[2].(string)
		return core.NewExchangeErrorWithCode(Name, mapError(code, msg), resp.StatusCode, strconv.FormatInt(code, 10), msg)
	case strings.HasPrefix(text, "{") && (resp.StatusCode < 200 || resp.StatusCode >= 300):
		var body v1Error
		if err := resp.Unmarshal(&body); err != nil {
			return nil
		}
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		if msg == "" {
			return nil
		}
		t := mapError(0, msg)
		if t == core.ErrorTypeExchange {
			return nil
		}
		return core.NewExchangeError(Name, t, resp.StatusCode, msg)
	}
	return nil
}

func mapError(code int64, msg string) core.ErrorType {
	switch code {
	case 10100, 10114:
		return core.ErrorTypeAuthentication
	case 11010:
		return core.ErrorTypeRateLimit
	case 20060:
		return core.ErrorTypeNotAvailable
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "apikey"), strings.Contains(lower, "api key"),
		strings.Contains(lower, "nonce"), strings.Contains(lower, "signature"),
		strings.Contains(lower, "could not find a key"):
		return core.ErrorTypeAuthentication
	case strings.Contains(lower, "ratelimit"), strings.Contains(lower, "rate_limit"), strings.Contains(lower, "rate limit"):
		return core.ErrorTypeRateLimit
	case strings.Contains(lower, "not enough") && strings.Contains(lower, "balance"),
		strings.Contains(lower, "insufficient"):
		return core.ErrorTypeInsufficientFunds
	case strings.Contains(lower, "order not found"), strings.Contains(lower, "order: invalid"):
		return core.ErrorTypeOrderNotFound
	case strings.Contains(lower, "invalid order"), strings.Contains(lower, "minimum size"),
		strings.Contains(lower, "price: invalid"), strings.Contains(lower, "amount: invalid"):
		return core.ErrorTypeInvalidOrder
	case strings.Contains(lower, "symbol: invalid"), strings.Contains(lower, "unknown symbol"):
		return core.ErrorTypeBadRequest
	}
	return core.ErrorTypeExchange
}
