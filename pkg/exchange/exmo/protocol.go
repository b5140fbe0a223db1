package exmo

import (
	"net/http"
	"regexp"
	"strings"

	"tukar/pkg/core"
	"tukar/pkg/exchange"
)

const (
	pathPairSettings   = "/v1/pair_settings"
	pathTicker         = "/v1/ticker"
	pathUserInfo       = "/v1.1/user_info"
	pathUserTrades     = "/v1.1/user_trades"
	pathUserOpenOrders = "/v1.1/user_open_orders"

	defaultTradesLimit = 1000
)

func buildPairSettingsRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathPairSettings)
}

func buildTickerRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathTicker)
}

func buildUserInfoRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodPost, pathUserInfo)
}

func buildOpenOrdersRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodPost, pathUserOpenOrders)
}

func buildUserTradesRequest(ids []string, options *exchange.Options) *core.Request {
	limit := defaultTradesLimit
	if options.Limit > 0 {
		limit = options.Limit
	}
	return core.NewPrivateRequest(http.MethodPost, pathUserTrades).SetParams(map[string]any{
		"pair":   strings.Join(ids, ","),
		"offset": 0,
		"limit":  limit,
	})
}

type apiError struct {
	Result *bool  `json:"result"`
	Error  string `json:"error"`
}

var errorCodePattern = regexp.MustCompile(`^Error (\d+)`)

// classifyError turns {"result":false} bodies into typed errors. Other
// payloads, including non-object ones, are left to status mapping.
func classifyError(resp *core.Response) *core.ExchangeError {
	text := strings.TrimSpace(resp.Text)
	if !strings.HasPrefix(text, "{") || !strings.Contains(text, `"result"`) {
		return nil
	}
	var body apiError
	if err := resp.Unmarshal(&body); err != nil || body.Result == nil || *body.Result {
		return nil
	}

	code := ""
	if m := errorCodePattern.FindStringSubmatch(body.Error); m != nil {
		code = m[1]
	}
	return core.NewExchangeErrorWithCode(Name, mapError(code, body.Error), resp.StatusCode, code, body.Error)
}

func mapError(code, message string) core.ErrorType {
	switch code {
	case "40003", "40005", "40009", "40015", "40016", "40017", "40032", "40033", "40034":
		return core.ErrorTypeAuthentication
	case "40030", "40031":
		return core.ErrorTypeRateLimit
	case "50052", "50054", "50304":
		return core.ErrorTypeInsufficientFunds
	case "50173", "50277", "50319", "50321":
		return core.ErrorTypeInvalidOrder
	}
	if strings.Contains(strings.ToLower(message), "insufficient") {
		return core.ErrorTypeInsufficientFunds
	}
	return core.ErrorTypeExchange
}
