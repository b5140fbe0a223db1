package auth

import (
	"crypto/sha256"
	"time"

	"tukar/pkg/core"
)

// QuerySigner signs the URL query with HMAC-SHA256 and appends the hex digest
// as the signature parameter. The API key travels in a header.
type QuerySigner struct {
	// KeyHeader carries the API key. Defaults to X-MBX-APIKEY.
	KeyHeader string
	// RecvWindow is sent as recvWindow when positive.
	RecvWindow int64
}

func (s QuerySigner) Sign(req *core.Request, creds *core.Credentials, now time.Time) error {
	if !req.IsPrivate() {
		return nil
	}
	if err := requireKey(creds); err != nil {
		return err
	}

	req.SetParam("timestamp", now.UnixMilli())
	if s.RecvWindow > 0 {
		req.SetParam("recvWindow", s.RecvWindow)
	}
	query := core.EncodeQuery(req.Params)
	req.Query = query + "&signature=" + hmacHex(sha256.New, creds.SecretKey, query)
	req.Encoding = core.EncodingQuery

	header := s.KeyHeader
	if header == "" {
		header = "X-MBX-APIKEY"
	}
	req.SetHeader(header, creds.APIKey)
	return nil
}
