package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of an exchange error.
type ErrorType int

// Error type constants categorize errors for proper handling and retry logic.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a transport failure before a response arrived.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeRateLimit indicates rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeDDoSProtection indicates the venue is actively blocking the client.
	ErrorTypeDDoSProtection
	// ErrorTypeAuthentication indicates missing, invalid or expired credentials.
	ErrorTypeAuthentication
	// ErrorTypeArgumentsRequired indicates a call lacked a parameter the venue needs.
	ErrorTypeArgumentsRequired
	// ErrorTypeBadRequest indicates invalid request parameters.
	ErrorTypeBadRequest
	// ErrorTypeInsufficientFunds indicates account lacks required balance.
	ErrorTypeInsufficientFunds
	// ErrorTypeInvalidOrder indicates the order violates exchange rules.
	ErrorTypeInvalidOrder
	// ErrorTypeOrderNotFound indicates the referenced order or resource does not exist.
	ErrorTypeOrderNotFound
	// ErrorTypeNotAvailable indicates the venue is down or in maintenance.
	ErrorTypeNotAvailable
	// ErrorTypeExchange is a venue error with no finer classification.
	ErrorTypeExchange
	// ErrorTypeBadResponse indicates a payload the adapter could not decode.
	ErrorTypeBadResponse
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"RATE_LIMIT",
		"DDOS_PROTECTION",
		"AUTHENTICATION",
		"ARGUMENTS_REQUIRED",
		"BAD_REQUEST",
		"INSUFFICIENT_FUNDS",
		"INVALID_ORDER",
		"ORDER_NOT_FOUND",
		"NOT_AVAILABLE",
		"EXCHANGE_ERROR",
		"BAD_RESPONSE",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNotConnected is returned when WebSocket is not connected.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrCircuitBreakerOpen is returned when circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrNoAPIKey is returned when no API key is available.
	ErrNoAPIKey = errors.New("no available API key")
	// ErrUnknownSymbol is returned when a symbol is not in the venue's market list.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// ExchangeError represents a structured error returned from an exchange.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response, 0 when none arrived.
	StatusCode int `json:"status_code"`
	// Code is the exchange-specific or library error code.
	Code string `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Body is the response text exactly as the venue sent it.
	Body string `json:"body,omitempty"`
	// Exchange identifies which exchange returned this error.
	Exchange string `json:"exchange"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
	// Err is the underlying cause for transport and decode failures.
	Err error `json:"-"`
}

// Error implements the error interface for ExchangeError.
// It returns a formatted string with exchange name, error type, status code, and message.
func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// WithCode sets the error code and returns the error for chaining.
func (e *ExchangeError) WithCode(code ErrorCode) *ExchangeError {
	e.Code = string(code)
	return e
}

// WithBody attaches the verbatim response text.
func (e *ExchangeError) WithBody(body string) *ExchangeError {
	e.Body = body
	return e
}

// WithCause attaches the underlying error.
func (e *ExchangeError) WithCause(err error) *ExchangeError {
	e.Err = err
	return e
}

// NewExchangeError creates a new ExchangeError with the specified details.
// The timestamp is automatically set to the current time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewExchangeErrorWithCode creates a new ExchangeError including an exchange-specific error code.
// The timestamp is automatically set to the current time.
func NewExchangeErrorWithCode(exchange string, errorType ErrorType, statusCode int, code, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewBadResponse wraps a decode failure of a venue payload.
func NewBadResponse(exchange string, body string, err error) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypeBadResponse, 0, err.Error()).
		WithBody(body).
		WithCause(err)
}

// NewArgumentsRequired reports a call made without a parameter the venue insists on.
func NewArgumentsRequired(exchange, message string) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypeArgumentsRequired, 0, message).
		WithCode(ErrCodeArgumentsRequired)
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown if err is not an ExchangeError.
func TypeOf(err error) ErrorType {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsErrorType reports whether err is an ExchangeError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var e *ExchangeError
	return errors.As(err, &e) && e.Type == t
}

// IsNetworkError returns true if the error is a network connectivity issue.
// Network errors are typically retryable.
func IsNetworkError(err error) bool {
	return IsErrorType(err, ErrorTypeNetwork)
}

// IsTimeoutError returns true if the error is a timeout.
func IsTimeoutError(err error) bool {
	return IsErrorType(err, ErrorTypeTimeout)
}

// IsRateLimitError returns true if the error is a rate limit or DDoS protection response.
// Both should be retried only after a delay.
func IsRateLimitError(err error) bool {
	return IsErrorType(err, ErrorTypeRateLimit) || IsErrorType(err, ErrorTypeDDoSProtection)
}

// IsAuthenticationError returns true if the error is an authentication failure.
// Authentication errors require credential validation and are not retryable.
func IsAuthenticationError(err error) bool {
	return IsErrorType(err, ErrorTypeAuthentication)
}

// IsNotAvailableError returns true if the venue reported itself unavailable.
func IsNotAvailableError(err error) bool {
	return IsErrorType(err, ErrorTypeNotAvailable)
}

// IsRetryable returns true for errors that may succeed on a later attempt.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit,
		ErrorTypeDDoSProtection, ErrorTypeNotAvailable:
		return true
	}
	return false
}

// IsTerminalError returns true if the error indicates a terminal condition.
// Terminal errors should not be retried as they will not succeed.
func IsTerminalError(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeInsufficientFunds, ErrorTypeInvalidOrder, ErrorTypeOrderNotFound,
		ErrorTypeArgumentsRequired, ErrorTypeAuthentication:
		return true
	}
	return false
}
