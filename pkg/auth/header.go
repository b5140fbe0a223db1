package auth

import (
	"crypto/sha256"
	"strconv"
	"strings"
	"time"

	"tukar/pkg/core"
)

// HeaderSigner implements key-version 2 header signing: base64 HMAC-SHA256 over
// timestamp + METHOD + path[?query] + body, with the passphrase HMAC'd by the
// same secret.
type HeaderSigner struct{}

func (HeaderSigner) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	if err := requireKey(creds); err != nil {
		return err
	}
	if creds.Passphrase == "" {
		return MissingCredentials("password")
	}
	if err := req.Resolve(); err != nil {
		return err
	}

	ts := strconv.FormatInt(now.UnixMilli(), 10)
	path := req.Path
	if req.Query != "" {
		path += "?" + req.Query
	}
	payload := ts + strings.ToUpper(req.Method) + path + string(req.Body)

	req.SetHeader("KC-API-KEY", creds.APIKey)
	req.SetHeader("KC-API-SIGN", hmacBase64(sha256.New, creds.SecretKey, payload))
	req.SetHeader("KC-API-TIMESTAMP", ts)
	req.SetHeader("KC-API-PASSPHRASE", hmacBase64(sha256.New, creds.SecretKey, creds.Passphrase))
	req.SetHeader("KC-API-KEY-VERSION", "2")
	return nil
}
