package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
)

// DecimalContext is the arithmetic context used for every derived value in the
// canonical model. 34 digits matches IEEE 754 decimal128.
var DecimalContext = apd.BaseContext.WithPrecision(34)

// ParseDecimal parses a venue number string into an exact decimal.
// Empty strings and JSON nulls yield zero.
func ParseDecimal(s string) (apd.Decimal, error) {
	var d apd.Decimal
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return d, nil
	}
	if _, _, err := apd.BaseContext.SetString(&d, s); err != nil {
		return d, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// MustDecimal is ParseDecimal for constants; it panics on malformed input.
func MustDecimal(s string) apd.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DecimalFromInt64 returns n as a decimal.
func DecimalFromInt64(n int64) apd.Decimal {
	var d apd.Decimal
	d.SetInt64(n)
	return d
}

// Unbounded returns the decimal used for an absent upper bound.
func Unbounded() apd.Decimal {
	return apd.Decimal{Form: apd.Infinite}
}

// IsUnbounded reports whether d marks an absent upper bound.
func IsUnbounded(d apd.Decimal) bool {
	return d.Form == apd.Infinite && !d.Negative
}

// Pow10 returns 10^exp.
func Pow10(exp int) apd.Decimal {
	return *apd.New(1, int32(exp))
}

// Add returns x + y.
func Add(x, y apd.Decimal) apd.Decimal {
	var d apd.Decimal
	_, _ = DecimalContext.Add(&d, &x, &y)
	return d
}

// Sub returns x - y.
func Sub(x, y apd.Decimal) apd.Decimal {
	var d apd.Decimal
	_, _ = DecimalContext.Sub(&d, &x, &y)
	return d
}

// Mul returns x * y.
func Mul(x, y apd.Decimal) apd.Decimal {
	var d apd.Decimal
	_, _ = DecimalContext.Mul(&d, &x, &y)
	return d
}

// Quo returns x / y, or zero when y is zero.
func Quo(x, y apd.Decimal) apd.Decimal {
	var d apd.Decimal
	if y.IsZero() {
		return d
	}
	_, _ = DecimalContext.Quo(&d, &x, &y)
	return d
}

// PrecisionFromStep converts a tick or lot step such as "0.00010000" into the
// number of decimal places it allows (4). Steps of 1 or more give 0.
func PrecisionFromStep(step apd.Decimal) int {
	if step.IsZero() {
		return 0
	}
	var reduced apd.Decimal
	reduced.Reduce(&step)
	if reduced.Exponent >= 0 {
		return 0
	}
	return int(-reduced.Exponent)
}

// DecimalString renders d in plain notation for request parameters.
func DecimalString(d apd.Decimal) string {
	return d.Text('f')
}

// ParseInt64 parses an integer string, treating empty as zero.
func ParseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// Number decodes a venue JSON value that may be a string, a number or null
// into an exact decimal. Numbers are read from their literal text, never
// through float64.
type Number struct {
	apd.Decimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	d, err := ParseDecimal(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	n.Decimal = d
	return nil
}

// MarshalJSON renders the decimal as a JSON string.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(`"` + n.Decimal.Text('f') + `"`), nil
}

// Dec returns the decoded decimal.
func (n Number) Dec() apd.Decimal {
	return n.Decimal
}

// LooseJSON decodes into interface values while keeping every JSON number
// as its literal text (json.Number), so positional venue rows stay exact.
var LooseJSON = sonic.Config{UseNumber: true}.Froze()

// DecimalOf converts a value decoded by LooseJSON into a decimal. Strings,
// json.Number and nil are accepted.
func DecimalOf(v any) (apd.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return apd.Decimal{}, nil
	case string:
		return ParseDecimal(x)
	case json.Number:
		return ParseDecimal(x.String())
	}
	return apd.Decimal{}, fmt.Errorf("unexpected %T for decimal", v)
}

// Int64Of converts a value decoded by LooseJSON into an integer.
func Int64Of(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		return ParseInt64(x)
	case json.Number:
		return x.Int64()
	}
	return 0, fmt.Errorf("unexpected %T for integer", v)
}
