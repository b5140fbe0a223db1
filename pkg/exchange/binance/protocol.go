package binance

import (
	"net/http"
	"strconv"
	"strings"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

const (
	pathTime         = "/api/v3/time"
	pathExchangeInfo = "/api/v3/exchangeInfo"
	pathTicker24h    = "/api/v3/ticker/24hr"
	pathAccount      = "/api/v3/account"
	pathOpenOrders   = "/api/v3/openOrders"
	pathAllOrders    = "/api/v3/allOrders"
	pathMyTrades     = "/api/v3/myTrades"
	pathOrder        = "/api/v3/order"
)

func buildTimeRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathTime)
}

func buildExchangeInfoRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathExchangeInfo).SetWeight(20)
}

func buildTickerRequest(id string) *core.Request {
	req := core.NewRequest(http.MethodGet, pathTicker24h).SetWeight(2)
	if id != "" {
		req.SetParam("symbol", id)
	} else {
		req.SetWeight(80)
	}
	return req
}

func buildAccountRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodGet, pathAccount).SetWeight(20)
}

func buildOpenOrdersRequest(id string) *core.Request {
	req := core.NewPrivateRequest(http.MethodGet, pathOpenOrders).SetWeight(6)
	if id != "" {
		req.SetParam("symbol", id)
	} else {
		req.SetWeight(80)
	}
	return req
}

// buildHistoryRequest builds allOrders and myTrades queries, which Binance
// only serves per symbol.
func buildHistoryRequest(path, id string, options *exchange.Options) *core.Request {
	req := core.NewPrivateRequest(http.MethodGet, path).SetWeight(20)
	req.SetParam("symbol", id)
	if since := options.SinceMillis(); since > 0 {
		req.SetParam("startTime", since)
	}
	if options.Limit > 0 {
		req.SetParam("limit", options.Limit)
	}
	return req
}

func buildCreateOrderRequest(m *core.Market, r *exchange.OrderRequest) *core.Request {
	req := core.NewPrivateRequest(http.MethodPost, pathOrder)
	req.SetParam("symbol", m.ID)
	req.SetParam("side", strings.ToUpper(r.Side.String()))
	req.SetParam("quantity", r.Amount)
	req.SetParam("newClientOrderId", r.ClientOrderID)

	switch r.Type {
	case core.TypeMarket:
		req.SetParam("type", "MARKET")
	default:
		req.SetParam("type", "LIMIT")
		req.SetParam("price", r.Price)
		req.SetParam("timeInForce", r.TimeInForce.String())
	}
	return req
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// classifyError refines non-2xx responses that carry a Binance error code.
// Unrecognised codes fall through to status code mapping.
func classifyError(resp *core.Response) *core.ExchangeError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body apiError
	if err := resp.Unmarshal(&body); err != nil || body.Code == 0 {
		return nil
	}
	t, ok := mapErrorCode(body.Code)
	if !ok {
		return nil
	}
	return core.NewExchangeErrorWithCode(Name, t, resp.StatusCode, strconv.Itoa(body.Code), body.Msg)
}

func mapErrorCode(code int) (core.ErrorType, bool) {
	switch code {
	case -1003, -1015:
		return core.ErrorTypeRateLimit, true
	case -1021, -1022, -2014, -2015:
		return core.ErrorTypeAuthentication, true
	case -2010:
		return core.ErrorTypeInsufficientFunds, true
	case -2011, -2013:
		return core.ErrorTypeOrderNotFound, true
	case -1013, -1111, -1112, -1116, -1117:
		return core.ErrorTypeInvalidOrder, true
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1121:
		return core.ErrorTypeBadRequest, true
	case -1000, -1001, -1016:
		return core.ErrorTypeNotAvailable, true
	}
	return core.ErrorTypeUnknown, false
}
