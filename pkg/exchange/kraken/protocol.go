package kraken

import (
	"net/http"
	"strings"

	"tukar/pkg/core"
)

const (
	pathAssetPairs = "/0/public/AssetPairs"
	pathTicker     = "/0/public/Ticker"
	pathBalanceEx  = "/0/private/BalanceEx"

	// tickerChunk bounds the pairs per Ticker call; longer query strings
	// are rejected upstream.
	tickerChunk = 1000
)

type envelope[T any] struct {
	Error  []string `json:"error"`
	Result T        `json:"result"`
}

func buildAssetPairsRequest() *core.Request {
	return core.NewRequest(http.MethodGet, pathAssetPairs)
}

func buildTickerRequest(ids []string) *core.Request {
	return core.NewRequest(http.MethodGet, pathTicker).SetParam("pair", strings.Join(ids, ","))
}

func buildBalanceRequest() *core.Request {
	return core.NewPrivateRequest(http.MethodPost, pathBalanceEx)
}

// classifyError inspects the error array of any response, including 200s.
func classifyError(resp *core.Response) *core.ExchangeError {
	var body envelope[struct{}]
	if err := resp.Unmarshal(&body); err != nil || len(body.Error) == 0 {
		return nil
	}
	msg := strings.Join(body.Error, "; ")
	code, _, _ := strings.Cut(body.Error[0], ":")
	return core.NewExchangeErrorWithCode(Name, mapError(body.Error[0]), resp.StatusCode, code, msg)
}

func mapError(msg string) core.ErrorType {
	switch {
	case strings.HasPrefix(msg, "EAPI:Invalid key"),
		strings.HasPrefix(msg, "EAPI:Invalid signature"),
		strings.HasPrefix(msg, "EAPI:Invalid nonce"),
		strings.HasPrefix(msg, "EGeneral:Permission denied"):
		return core.ErrorTypeAuthentication
	case strings.Contains(msg, "Rate limit exceeded"),
		strings.HasPrefix(msg, "EGeneral:Too many requests"):
		return core.ErrorTypeRateLimit
	case strings.HasPrefix(msg, "EOrder:Insufficient funds"):
		return core.ErrorTypeInsufficientFunds
	case strings.HasPrefix(msg, "EOrder:Unknown order"):
		return core.ErrorTypeOrderNotFound
	case strings.HasPrefix(msg, "EOrder:"):
		return core.ErrorTypeInvalidOrder
	case strings.HasPrefix(msg, "EQuery:"), strings.HasPrefix(msg, "EGeneral:Invalid arguments"):
		return core.ErrorTypeBadRequest
	case strings.HasPrefix(msg, "EService:"), strings.HasPrefix(msg, "EDatabase:"):
		return core.ErrorTypeNotAvailable
	}
	return core.ErrorTypeExchange
}
