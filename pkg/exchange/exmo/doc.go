// Package exmo implements the EXMO spot REST API: pair settings, tickers,
// wallet balances, open orders and account trades.
//
// Private endpoints are POSTs to /v1.1 with a form body signed by
// auth.FormDigestSigner. EXMO reports most failures as HTTP 200 with
// {"result":false,"error":"Error NNNNN: ..."}; classifyError turns those
// into typed errors.
package exmo
