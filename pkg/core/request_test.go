package core

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req := NewRequest("GET", "/api/v3/ticker/24hr")

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/api/v3/ticker/24hr", req.Path)
	assert.Equal(t, APIPublic, req.APIType)
	assert.NotNil(t, req.Params)
	assert.NotNil(t, req.Headers)
	assert.Equal(t, 1, req.Weight)
	assert.False(t, req.IsPrivate())

	assert.True(t, NewPrivateRequest("POST", "/v1/balances").IsPrivate())
}

func TestRequest_Setters(t *testing.T) {
	req := NewRequest(http.MethodPost, "/order").
		SetParam("symbol", "BTCUSDT").
		SetParams(Params{"side": "BUY"}).
		SetHeader("X-Custom", "value").
		SetWeight(5).
		SetEncoding(EncodingForm).
		SetBaseURL("https://example.com").
		SetTimeout(time.Second)

	assert.Equal(t, "BTCUSDT", req.Params["symbol"])
	assert.Equal(t, "BUY", req.Params["side"])
	assert.Equal(t, "value", req.Headers["X-Custom"])
	assert.Equal(t, 5, req.Weight)
	assert.Equal(t, EncodingForm, req.Encoding)
	assert.Equal(t, time.Second, req.Timeout)
	assert.Equal(t, "https://example.com/order", req.URL())
}

func TestRequest_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		req       *Request
		wantQuery string
		wantBody  string
	}{
		{
			name:      "get_params_in_query",
			req:       NewRequest(http.MethodGet, "/t").SetParam("b", 2).SetParam("a", "x y"),
			wantQuery: "a=x+y&b=2",
		},
		{
			name:     "post_json_sorted",
			req:      NewRequest(http.MethodPost, "/t").SetParam("z", "1").SetParam("a", int64(5)),
			wantBody: `{"a":5,"z":"1"}`,
		},
		{
			name:     "post_form",
			req:      NewRequest(http.MethodPost, "/t").SetEncoding(EncodingForm).SetParam("nonce", int64(7)).SetParam("key", "k"),
			wantBody: "key=k&nonce=7",
		},
		{
			name:      "post_query_encoding",
			req:       NewRequest(http.MethodPost, "/t").SetEncoding(EncodingQuery).SetParam("q", true),
			wantQuery: "q=true",
		},
		{
			name: "no_params",
			req:  NewRequest(http.MethodPost, "/t"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.req.Resolve())
			assert.Equal(t, tt.wantQuery, tt.req.Query)
			assert.Equal(t, tt.wantBody, string(tt.req.Body))
		})
	}
}

func TestRequest_ResolveKeepsSignedOutput(t *testing.T) {
	req := NewRequest(http.MethodGet, "/t").SetParam("a", "1")
	req.Query = "a=1&signature=abc"
	require.NoError(t, req.Resolve())
	assert.Equal(t, "a=1&signature=abc", req.Query)

	post := NewRequest(http.MethodPost, "/t").SetParam("a", "1")
	post.Body = []byte("signed")
	require.NoError(t, post.Resolve())
	assert.Equal(t, "signed", string(post.Body))
}

func TestFormatParam(t *testing.T) {
	assert.Equal(t, "0.0010", FormatParam(MustDecimal("0.0010")))
	d := MustDecimal("12.5")
	assert.Equal(t, "12.5", FormatParam(&d))
	assert.Equal(t, "42", FormatParam(42))
	assert.Equal(t, "1.5", FormatParam(1.5))
}

func TestEncoding_ContentType(t *testing.T) {
	assert.Equal(t, "application/json", EncodingJSON.ContentType())
	assert.Equal(t, "application/x-www-form-urlencoded", EncodingForm.ContentType())
}

func TestResponse_Unmarshal(t *testing.T) {
	resp := &Response{StatusCode: 200, Text: `{"serverTime":1700000000000}`}

	var v struct {
		ServerTime int64 `json:"serverTime"`
	}
	require.NoError(t, resp.Unmarshal(&v))
	assert.Equal(t, int64(1700000000000), v.ServerTime)
}
