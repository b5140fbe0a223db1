package kucoin

import (
	"net/http"
	"strings"

	"tukar/pkg/core"
)

const (
	pathSymbols    = "/api/v1/symbols"
	pathAllTickers = "/api/v1/market/allTickers"
	pathStats      = "/api/v1/market/stats"
	pathAccounts   = "/api/v1/accounts"
	pathOrders     = "/api/v1/orders"

	codeSuccess   = "200000"
	ordersPerPage = 500
)

// envelope wraps every KuCoin response.
type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

func buildSymbolsRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathSymbols)
}

func buildAllTickersRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathAllTickers)
}

func buildStatsRequest(id string) *core.Request {
	return core.NewRequest(http.MethodGet, pathStats).SetParam("symbol", id)
}

func buildAccountsRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodGet, pathAccounts).SetParam("type", "trade")
}

func buildActiveOrdersRequest(id string, page int) *core.Request {
	req := core.NewPrivateRequest(http.MethodGet, pathOrders).SetParams(core.Params{
		"status":      "active",
		"currentPage": page,
		"pageSize":    ordersPerPage,
	})
	if id != "" {
		req.SetParam("symbol", id)
	}
	return req
}

// classifyError maps envelope codes other than 200000, whatever the HTTP
// status.
func classifyError(resp *core.Response) *core.ExchangeError {
	if !strings.HasPrefix(strings.TrimSpace(resp.Text), "{") {
		return nil
	}
	var body envelope[struct{}]
	if err := resp.Unmarshal(&body); err != nil || body.Code == "" || body.Code == codeSuccess {
		return nil
	}
	return core.NewExchangeErrorWithCode(Name, mapErrorCode(body.Code), resp.StatusCode, body.Code, body.Msg)
}

func mapErrorCode(code string) core.ErrorType {
	switch code {
	case "400001", "400002", "400003", "400004", "400005", "400006", "400007", "411100":
		return core.ErrorTypeAuthentication
	case "429000", "1015":
		return core.ErrorTypeRateLimit
	case "200004", "115019":
		return core.ErrorTypeInsufficientFunds
	case "400100", "404000", "900001":
		return core.ErrorTypeBadRequest
	case "400600", "400760", "900003":
		return core.ErrorTypeInvalidOrder
	case "400400":
		return core.ErrorTypeOrderNotFound
	case "500000":
		return core.ErrorTypeNotAvailable
	}
	return core.ErrorTypeExchange
}
