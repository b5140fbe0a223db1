package auth

import (
	"crypto/sha512"
	"encoding/base64"
	"strings"
	"time"

	"tukar/pkg/core"
)

// PayloadSigner implements the v1 scheme where the whole request, including
// its path and nonce, is JSON encoded, base64'd into a header and signed
// with HMAC-SHA384.
type PayloadSigner struct{}

func (PayloadSigner) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	if err := requireKey(creds); err != nil {
		return err
	}

	req.SetParam("request", req.Path)
	req.SetParam("nonce", nonce(now))
	body, err := core.EncodeJSON(req.Params)
	if err != nil {
		return err
	}
	payload := base64.StdEncoding.EncodeToString(body)

	req.Body = body
	req.SetHeader("X-BFX-APIKEY", creds.APIKey)
	req.SetHeader("X-BFX-PAYLOAD", payload)
	req.SetHeader("X-BFX-SIGNATURE", hmacHex(sha512.New384, creds.SecretKey, payload))
	return nil
}

// PathNonceSigner implements the v2 scheme: HMAC-SHA384 over
// "/api/" + path + nonce + JSON body, with the body only when params exist.
type PathNonceSigner struct{}

func (PathNonceSigner) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	if err := requireKey(creds); err != nil {
		return err
	}

	n := nonce(now)
	message := "/api/" + strings.TrimPrefix(req.Path, "/") + n
	if len(req.Params) > 0 {
		body, err := core.EncodeJSON(req.Params)
		if err != nil {
			return err
		}
		req.Body = body
		message += string(body)
	}

	req.SetHeader("bfx-nonce", n)
	req.SetHeader("bfx-apikey", creds.APIKey)
	req.SetHeader("bfx-signature", hmacHex(sha512.New384, creds.SecretKey, message))
	return nil
}
