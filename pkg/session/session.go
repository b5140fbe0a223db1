package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tukar/internal/circuitbreaker"
	"tukar/internal/keyring"
	"tukar/internal/metrics"
	"tukar/internal/throttle"
	"tukar/internal/transport"
	"tukar/pkg/auth"
	"tukar/pkg/core"
)

// State represents the lifecycle state of a Session.
type State int

const (
	// StateActive indicates a session that is ready to process requests.
	StateActive State = iota
	// StateClosed indicates a session that has been shut down and can no longer be used.
	StateClosed
)

// String returns the string representation of the State.
func (s State) String() string {
	return [...]string{"ACTIVE", "CLOSED"}[s]
}

// ErrorClassifier inspects a response and returns a typed error when the
// body reports a failure, or nil to fall back to status code mapping. It is
// consulted for every response, so venues that report errors with HTTP 200
// can be handled too.
type ErrorClassifier func(resp *core.Response) *core.ExchangeError

// Session runs the request pipeline for one venue client:
// credentials check, circuit breaker, throttle, sign, resolve, transport,
// classify. It owns the per-venue throttle clock and is safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	name       string
	config     *core.Config
	baseURL    string
	signer     auth.Signer
	throttle   *throttle.Throttle
	breaker    *circuitbreaker.Breaker
	keys       *keyring.KeyRing
	transport  *transport.Client
	classifier ErrorClassifier
	clock      func(ctx context.Context) time.Time
	logger     zerolog.Logger
	state      State
	createdAt  time.Time
	lastUsed   time.Time

	throttleConfig throttle.Config
	throttleOpts   []throttle.Option
	userAgent      string
}

// Option configures a Session.
type Option func(*Session)

// WithBaseURL sets the venue host used when a request carries none.
// A BaseURL in the config takes precedence.
func WithBaseURL(url string) Option {
	return func(s *Session) {
		s.baseURL = url
	}
}

// WithSigner sets the venue's signing scheme. The default rejects private calls.
func WithSigner(signer auth.Signer) Option {
	return func(s *Session) {
		s.signer = signer
	}
}

// WithThrottle sets the venue's throttling rules.
func WithThrottle(config throttle.Config, opts ...throttle.Option) Option {
	return func(s *Session) {
		s.throttleConfig = config
		s.throttleOpts = opts
	}
}

// WithClassifier installs a venue specific error classifier.
func WithClassifier(c ErrorClassifier) Option {
	return func(s *Session) {
		s.classifier = c
	}
}

// WithKeyRing supplies credentials from a key ring instead of the config.
func WithKeyRing(keys *keyring.KeyRing) Option {
	return func(s *Session) {
		s.keys = keys
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithUserAgent sets the User-Agent header unless the config sets one.
func WithUserAgent(ua string) Option {
	return func(s *Session) {
		s.userAgent = ua
	}
}

// New creates a Session for the venue described by config.
func New(config *core.Config, opts ...Option) (*Session, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	s := &Session{
		name:      config.Exchange,
		config:    config,
		signer:    auth.None{},
		clock:     func(context.Context) time.Time { return time.Now() },
		logger:    zerolog.Nop(),
		state:     StateActive,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if config.BaseURL != "" {
		s.baseURL = config.BaseURL
	}
	if s.keys == nil {
		s.keys = keyring.Single(config.Credentials)
	}

	tc := s.throttleConfig
	if config.RateLimit > 0 {
		tc.Interval = config.RateLimit
		if tc.PrivateInterval > 0 && tc.PrivateInterval < config.RateLimit {
			tc.PrivateInterval = config.RateLimit
		}
	}
	s.throttle = throttle.New(config.Exchange, tc, s.throttleOpts...)

	if config.CircuitBreakerEnabled {
		s.breaker = circuitbreaker.New(config.Exchange, circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		}, circuitbreaker.WithLogger(s.logger))
	}

	ua := config.UserAgent
	if ua == "" {
		ua = s.userAgent
	}
	client, err := transport.NewClient(&transport.Config{
		Exchange:  config.Exchange,
		Timeout:   config.Timeout,
		UserAgent: ua,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	s.transport = client

	return s, nil
}

// SetClock replaces the time source handed to the signer, e.g. with a
// server-skew corrected clock.
func (s *Session) SetClock(clock func(ctx context.Context) time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Execute sends req through the pipeline and returns the successful response.
// Non-2xx responses and classifier hits become *core.ExchangeError values
// carrying the response text verbatim. Nothing is retried.
func (s *Session) Execute(ctx context.Context, req *core.Request) (*core.Response, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil, core.NewExchangeError(s.name, core.ErrorTypeNetwork, 0, "session is closed").
			WithCode(core.ErrCodeClientClosed).
			WithCause(core.ErrClientClosed)
	}
	s.lastUsed = time.Now()
	clock := s.clock
	s.mu.Unlock()

	if req.BaseURL == "" {
		req.BaseURL = s.baseURL
	}

	var creds *core.Credentials
	if req.IsPrivate() {
		creds = s.keys.Current()
		if !creds.HasKey() {
			return nil, s.fail(auth.MissingCredentials("apiKey"))
		}
	}

	if s.breaker != nil {
		if err := s.breaker.Allow(); err != nil {
			return nil, s.fail(err)
		}
	}

	if err := s.throttle.Wait(ctx, req.APIType); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.NewExchangeError(s.name, core.ErrorTypeTimeout, 0, "throttle wait timed out").
				WithCode(core.ErrCodeTimeout).
				WithCause(err)
		}
		return nil, fmt.Errorf("throttle wait: %w", err)
	}

	start := time.Now()
	// only private calls consult the venue clock; it may itself issue a
	// public request to resync
	now := start
	if req.IsPrivate() {
		now = clock(ctx)
	}
	if err := s.signer.Sign(req, creds, now); err != nil {
		return nil, s.fail(err)
	}
	if err := req.Resolve(); err != nil {
		return nil, s.fail(core.NewExchangeError(s.name, core.ErrorTypeBadRequest, 0, err.Error()).WithCause(err))
	}

	raw, err := s.transport.Do(ctx, req)
	if err != nil {
		s.record(req, 0, start, creds, err)
		return nil, s.fail(err)
	}
	s.throttle.Observe(raw.Header)

	resp := &core.Response{
		Request:    req,
		StatusCode: raw.StatusCode,
		Header:     raw.Header,
		Text:       string(raw.Body),
	}

	var classified error
	if exErr := s.classify(resp); exErr != nil {
		classified = s.fail(exErr)
	}
	s.record(req, resp.StatusCode, start, creds, classified)
	if classified != nil {
		s.logger.Debug().
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Str("type", core.TypeOf(classified).String()).
			Msg("venue returned an error")
		return nil, classified
	}
	return resp, nil
}

// ExecuteJSON runs Execute and decodes the response text into v. Decode
// failures are BadResponse errors that leave session state untouched.
func (s *Session) ExecuteJSON(ctx context.Context, req *core.Request, v any) (*core.Response, error) {
	resp, err := s.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Unmarshal(v); err != nil {
		return resp, core.NewBadResponse(s.name, resp.Text, err).WithCode(core.ErrCodeDecode)
	}
	return resp, nil
}

func (s *Session) classify(resp *core.Response) *core.ExchangeError {
	if s.classifier != nil {
		if err := s.classifier(resp); err != nil {
			if err.StatusCode == 0 {
				err.StatusCode = resp.StatusCode
			}
			if err.Body == "" {
				err.Body = resp.Text
			}
			return err
		}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return ClassifyStatus(s.name, resp.StatusCode, resp.Text)
}

func (s *Session) record(req *core.Request, status int, start time.Time, creds *core.Credentials, err error) {
	metrics.ObserveRequest(s.name, string(req.APIType), status, time.Since(start))
	if err != nil {
		metrics.ObserveError(s.name, core.TypeOf(err).String())
	}
	if s.breaker != nil {
		s.breaker.Record(err)
	}
	if creds != nil {
		if err != nil {
			s.keys.OnError(err)
		} else {
			s.keys.MarkUsed()
		}
	}
}

// fail stamps the venue name on library errors that were built without one.
func (s *Session) fail(err error) error {
	var exErr *core.ExchangeError
	if errors.As(err, &exErr) && exErr.Exchange == "" {
		exErr.Exchange = s.name
	}
	return err
}

const maxMessageLen = 512

// ClassifyStatus maps a non-2xx status code to an error type. The body is
// kept verbatim in Body; short bodies double as the message.
func ClassifyStatus(exchange string, status int, body string) *core.ExchangeError {
	var t core.ErrorType
	switch {
	case status == http.StatusTooManyRequests:
		t = core.ErrorTypeRateLimit
	case status == http.StatusTeapot:
		t = core.ErrorTypeDDoSProtection
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		t = core.ErrorTypeAuthentication
	case status == http.StatusBadRequest:
		t = core.ErrorTypeBadRequest
	case status == http.StatusNotFound:
		t = core.ErrorTypeOrderNotFound
	case status >= 500:
		t = core.ErrorTypeNotAvailable
	default:
		t = core.ErrorTypeExchange
	}

	message := body
	if message == "" || len(message) > maxMessageLen {
		message = http.StatusText(status)
	}
	return core.NewExchangeError(exchange, t, status, message).WithBody(body)
}

// Close shuts down the session and releases its connections.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	return s.transport.Close()
}

// Name returns the venue name the session was configured for.
func (s *Session) Name() string {
	return s.name
}

// State returns the current lifecycle state of the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Config returns the configuration used to create the session.
func (s *Session) Config() *core.Config {
	return s.config
}

// Throttle exposes the session throttle for inspection.
func (s *Session) Throttle() *throttle.Throttle {
	return s.throttle
}

// Breaker returns the circuit breaker, or nil when disabled.
func (s *Session) Breaker() *circuitbreaker.Breaker {
	return s.breaker
}

// Logger returns the session logger.
func (s *Session) Logger() zerolog.Logger {
	return s.logger
}

// CreatedAt returns the timestamp when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastUsed returns the timestamp of the last request executed by the session.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// HasCredentials reports whether private endpoints can be called.
func (s *Session) HasCredentials() bool {
	return s.keys.Current().HasKey()
}
