package cex

import (
	"net/http"
	"strings"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

const (
	pathCurrencyProfile = "/api/currency_profile"
	pathCurrencyLimits  = "/api/currency_limits"
	pathTickers         = "/api/tickers/"
	pathBalance         = "/api/balance/"
	pathOpenOrders      = "/api/open_orders/"
	pathArchivedOrders  = "/api/archived_orders/"
)

func buildCurrencyProfileRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathCurrencyProfile)
}

func buildCurrencyLimitsRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathCurrencyLimits)
}

// buildTickersRequest asks for every pair quoted in one of quotes, e.g.
// /api/tickers/USD/EUR/BTC.
func buildTickersRequest(quotes []string) *core.Request {
	return core.NewRequest(http.MethodGet, pathTickers+strings.Join(quotes, "/"))
}

func buildBalanceRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodPost, pathBalance)
}

func buildOpenOrdersRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodPost, pathOpenOrders)
}

// buildArchivedOrdersRequest narrows to one pair when m is set. dateFrom is
// in seconds.
func buildArchivedOrdersRequest(m *core.Market, options *exchange.Options) *core.Request {
	path := pathArchivedOrders
	if m != nil {
		path += m.BaseID + "/" + m.QuoteID
	}
	req := core.NewPrivateRequest(http.MethodPost, path)
	if since := options.SinceMillis(); since > 0 {
		req.SetParam("dateFrom", since/1000)
	}
	if options.Limit > 0 {
		req.SetParam("limit", options.Limit)
	}
	return req
}

type apiError struct {
	Error string `json:"error"`
}

// classifyError reads {"error":"..."} objects, which CEX.IO sends with
// HTTP 200.
func classifyError(resp *core.Response) *core.ExchangeError {
	text := strings.TrimSpace(resp.Text)
	if !strings.HasPrefix(text, "{") || !strings.Contains(text, `"error"`) {
		return nil
	}
	var body apiError
	if err := resp.Unmarshal(&body); err != nil || body.Error == "" {
		return nil
	}
	return core.NewExchangeError(Name, mapError(body.Error), resp.StatusCode, body.Error)
}

func mapError(msg string) core.ErrorType {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api key"), strings.Contains(lower, "signature"),
		strings.Contains(lower, "nonce"), strings.Contains(lower, "permission"):
		return core.ErrorTypeAuthentication
	case strings.Contains(lower, "rate limit"):
		return core.ErrorTypeRateLimit
	case strings.Contains(lower, "insufficient"):
		return core.ErrorTypeInsufficientFunds
	case strings.Contains(lower, "invalid symbols pair"):
		return core.ErrorTypeBadRequest
	}
	return core.ErrorTypeExchange
}
