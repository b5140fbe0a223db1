// Package transport executes resolved venue requests over HTTP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"tukar/pkg/core"
)

// Client wraps a resty HTTP client with sonic codecs and request logging.
// It never retries; retry policy belongs to callers.
type Client struct {
	exchange string
	client   *resty.Client
	logger   zerolog.Logger
	mu       sync.RWMutex
	closed   bool
}

type Config struct {
	// Exchange labels errors and log events.
	Exchange  string            `validate:"required"`
	Timeout   time.Duration     `validate:"min=1ms"`
	UserAgent string            `validate:"omitempty"`
	Headers   map[string]string `validate:"omitempty"`
}

// Response is the raw outcome of an HTTP exchange, whatever its status.
type Response struct {
	// StatusCode is the HTTP status code returned by the server.
	StatusCode int
	// Header contains the response headers.
	Header http.Header
	// Body contains the raw response body bytes.
	Body []byte
}

var validate = validator.New()

// NewClient creates a new HTTP client with the specified configuration.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}

	client := resty.New()
	client.SetTimeout(config.Timeout)
	client.SetRetryCount(0)
	client.AddContentTypeEncoder("application/json", func(w io.Writer, v any) error {
		data, err := sonic.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	client.AddContentTypeDecoder("application/json", func(r io.Reader, v any) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(data, v)
	})

	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}
	for k, v := range config.Headers {
		client.SetHeader(k, v)
	}

	logger = logger.With().Str("exchange", config.Exchange).Logger()

	// Only method and path are logged: queries and headers of private calls
	// carry keys and signatures.
	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		logger.Debug().
			Str("method", req.Method).
			Str("path", pathOf(req.URL)).
			Msg("http request")
		return nil
	})

	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug().
			Str("method", resp.Request.Method).
			Str("path", pathOf(resp.Request.URL)).
			Int("status", resp.StatusCode()).
			Int("size", len(resp.Bytes())).
			Msg("http response")
		return nil
	})

	return &Client{
		exchange: config.Exchange,
		client:   client,
		logger:   logger,
	}, nil
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

// Close releases idle connections. Further calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// Do sends a resolved request. Query and Body must already be final;
// Do transmits them byte for byte. Failures before a response arrives are
// returned as Network or Timeout ExchangeErrors.
func (c *Client) Do(ctx context.Context, req *core.Request) (*Response, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, core.NewExchangeError(c.exchange, core.ErrorTypeNetwork, 0, "client is closed").
			WithCode(core.ErrCodeClientClosed).
			WithCause(core.ErrClientClosed)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r := c.client.R().SetContext(ctx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if len(req.Body) > 0 {
		r.SetHeader("Content-Type", req.Encoding.ContentType())
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL())
	if err != nil {
		c.logger.Debug().Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("http request failed")
		return nil, c.classify(ctx, err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Bytes(),
	}, nil
}

func (c *Client) classify(ctx context.Context, err error) *core.ExchangeError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return core.NewExchangeError(c.exchange, core.ErrorTypeTimeout, 0, "request timed out").
			WithCode(core.ErrCodeTimeout).
			WithCause(err)
	}
	return core.NewExchangeError(c.exchange, core.ErrorTypeNetwork, 0, err.Error()).
		WithCode(core.ErrCodeNetwork).
		WithCause(err)
}

// IsSuccess returns true if the response status code indicates success (2xx).
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Unmarshal parses the response body into the provided value using sonic.
func (r *Response) Unmarshal(v any) error {
	return sonic.Unmarshal(r.Body, v)
}
