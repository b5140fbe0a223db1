package core

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
)

// APIType separates unauthenticated from signed endpoints.
type APIType string

const (
	APIPublic  APIType = "public"
	APIPrivate APIType = "private"
)

// Encoding selects where Params travel when the request is resolved.
type Encoding int

const (
	// EncodingJSON sends Params as a JSON body (the default).
	EncodingJSON Encoding = iota
	// EncodingForm sends Params as an application/x-www-form-urlencoded body.
	EncodingForm
	// EncodingQuery sends Params in the URL query regardless of method.
	EncodingQuery
)

// ContentType returns the Content-Type header for a body in this encoding.
func (e Encoding) ContentType() string {
	if e == EncodingForm {
		return "application/x-www-form-urlencoded"
	}
	return "application/json"
}

type Params map[string]any

// Request is a logical venue call. Adapters fill the venue fields; signers
// may add headers, params, or pre-resolve Query and Body. Requests are built
// fresh for every call.
type Request struct {
	BaseURL  string            `json:"base_url"`
	Path     string            `json:"path"`
	Method   string            `json:"method"`
	APIType  APIType           `json:"api_type"`
	Params   Params            `json:"params,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Query    string            `json:"-"`
	Body     []byte            `json:"-"`
	Encoding Encoding          `json:"encoding"`
	Weight   int               `json:"weight"`
	// Timeout overrides the client timeout for this call when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		APIType: APIPublic,
		Params:  make(Params),
		Headers: make(map[string]string),
		Weight:  1,
	}
}

// NewPrivateRequest is NewRequest for a signed endpoint.
func NewPrivateRequest(method, path string) *Request {
	return NewRequest(method, path).SetAPIType(APIPrivate)
}

func (r *Request) SetParam(key string, value any) *Request {
	if r.Params == nil {
		r.Params = make(Params)
	}
	r.Params[key] = value
	return r
}

func (r *Request) SetParams(params Params) *Request {
	if r.Params == nil {
		r.Params = make(Params)
	}
	maps.Copy(r.Params, params)
	return r
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetWeight(weight int) *Request {
	r.Weight = weight
	return r
}

func (r *Request) SetAPIType(t APIType) *Request {
	r.APIType = t
	return r
}

func (r *Request) SetEncoding(e Encoding) *Request {
	r.Encoding = e
	return r
}

func (r *Request) SetBaseURL(u string) *Request {
	r.BaseURL = u
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// IsPrivate reports whether the request needs credentials.
func (r *Request) IsPrivate() bool {
	return r.APIType == APIPrivate
}

// ParamsInQuery reports whether Params belong in the URL rather than the body.
func (r *Request) ParamsInQuery() bool {
	return r.Encoding == EncodingQuery || r.Method == http.MethodGet || r.Method == http.MethodDelete
}

// Resolve serializes Params into Query or Body. A Query or Body that a
// signer already produced is left untouched so signed bytes are sent as-is.
func (r *Request) Resolve() error {
	if len(r.Params) == 0 {
		return nil
	}
	if r.ParamsInQuery() {
		if r.Query == "" {
			r.Query = EncodeQuery(r.Params)
		}
		return nil
	}
	if r.Body != nil {
		return nil
	}
	switch r.Encoding {
	case EncodingForm:
		r.Body = []byte(EncodeQuery(r.Params))
	default:
		body, err := EncodeJSON(r.Params)
		if err != nil {
			return err
		}
		r.Body = body
	}
	return nil
}

// URL returns the full request URL including any resolved query.
func (r *Request) URL() string {
	u := r.BaseURL + r.Path
	if r.Query != "" {
		u += "?" + r.Query
	}
	return u
}

// EncodeQuery renders params as a URL query with keys in sorted order.
func EncodeQuery(params Params) string {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, FormatParam(v))
	}
	return values.Encode()
}

// EncodeJSON renders params as JSON with keys in sorted order.
func EncodeJSON(params Params) ([]byte, error) {
	body, err := sonic.ConfigStd.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return body, nil
}

// FormatParam renders a single parameter value as venues expect it on the wire.
func FormatParam(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case apd.Decimal:
		return x.Text('f')
	case *apd.Decimal:
		return x.Text('f')
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Response is the raw outcome of a successful (2xx) call.
type Response struct {
	Request    *Request    `json:"-"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"-"`
	Text       string      `json:"text"`
}

// Unmarshal decodes the response text into v.
func (r *Response) Unmarshal(v any) error {
	return sonic.UnmarshalString(r.Text, v)
}
