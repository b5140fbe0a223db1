// Package auth implements the request signing schemes used by the supported
// venues. A Signer mutates a core.Request in place and is a pure function of
// the request, the credentials and the supplied time.
package auth

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strconv"
	"time"

	"tukar/pkg/core"
)

// Signer authenticates private requests. Public requests pass through untouched.
type Signer interface {
	Sign(req *core.Request, creds *core.Credentials, now time.Time) error
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(req *core.Request, creds *core.Credentials, now time.Time) error

func (f SignerFunc) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	return f(req, creds, now)
}

// None is the signer for venues that are used through public endpoints only.
// It rejects private requests.
type None struct{}

func (None) Sign(req *core.Request, _ *core.Credentials, _ time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	return core.NewExchangeError("", core.ErrorTypeAuthentication, 0, "private endpoints are not supported").
		WithCode(core.ErrCodeAuth)
}

// MissingCredentials builds the error returned when a private call lacks a credential field.
func MissingCredentials(field string) *core.ExchangeError {
	return core.NewExchangeError("", core.ErrorTypeAuthentication, 0, field+" is required for private endpoints").
		WithCode(core.ErrCodeNoCredentials).
		WithCause(core.ErrNoCredentials)
}

func requireKey(creds *core.Credentials) error {
	if creds == nil || creds.APIKey == "" {
		return MissingCredentials("apiKey")
	}
	if creds.SecretKey == "" {
		return MissingCredentials("secret")
	}
	return nil
}

func nonce(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

func hmacSum(h func() hash.Hash, key []byte, message []byte) []byte {
	mac := hmac.New(h, key)
	mac.Write(message)
	return mac.Sum(nil)
}

func hmacHex(h func() hash.Hash, secret, message string) string {
	return hex.EncodeToString(hmacSum(h, []byte(secret), []byte(message)))
}

func hmacBase64(h func() hash.Hash, secret, message string) string {
	return base64.StdEncoding.EncodeToString(hmacSum(h, []byte(secret), []byte(message)))
}
