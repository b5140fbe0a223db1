package auth

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"strings"
	"time"

	"tukar/pkg/core"
)

// FormSigner merges key, nonce and an upper-case hex HMAC-SHA256 of
// nonce + user id + key into the request parameters.
type FormSigner struct{}

func (FormSigner) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	if err := requireKey(creds); err != nil {
		return err
	}
	if creds.UserID == "" {
		return MissingCredentials("uid")
	}

	n := nonce(now)
	req.SetParam("key", creds.APIKey)
	req.SetParam("nonce", n)
	req.SetParam("signature", strings.ToUpper(hmacHex(sha256.New, creds.SecretKey, n+creds.UserID+creds.APIKey)))
	req.Encoding = core.EncodingForm
	return nil
}

// FormDigestSigner adds a nonce parameter, form-encodes the body and signs the
// exact body bytes with HMAC-SHA512 in the Sign header.
type FormDigestSigner struct{}

func (FormDigestSigner) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	if err := requireKey(creds); err != nil {
		return err
	}

	req.SetParam("nonce", now.UnixMilli())
	body := core.EncodeQuery(req.Params)
	req.Body = []byte(body)
	req.Encoding = core.EncodingForm

	req.SetHeader("Key", creds.APIKey)
	req.SetHeader("Sign", hmacHex(sha512.New, creds.SecretKey, body))
	return nil
}

// NonceDigestSigner signs path + SHA256(nonce + body) with HMAC-SHA512 keyed
// by the base64-decoded secret.
type NonceDigestSigner struct{}

func (NonceDigestSigner) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	if err := requireKey(creds); err != nil {
		return err
	}
	secret, err := base64.StdEncoding.DecodeString(creds.SecretKey)
	if err != nil {
		return core.NewExchangeError("", core.ErrorTypeAuthentication, 0, "secret is not valid base64").
			WithCode(core.ErrCodeAuth).
			WithCause(err)
	}

	n := nonce(now)
	req.SetParam("nonce", n)
	body := core.EncodeQuery(req.Params)
	req.Body = []byte(body)
	req.Encoding = core.EncodingForm

	digest := sha256.Sum256([]byte(n + body))
	message := append([]byte(req.Path), digest[:]...)

	req.SetHeader("API-Key", creds.APIKey)
	req.SetHeader("API-Sign", base64.StdEncoding.EncodeToString(hmacSum(sha512.New, secret, message)))
	return nil
}
