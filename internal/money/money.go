// Package money holds the fixed-point amount type shared by the menu, the
// cost engine and the payment flow. Amounts are integer minor units (pence);
// decimal text only appears at the edges (catalog files, JSON, SQL numerics).
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Money is an amount in minor currency units.
type Money int64

// Zero is the empty amount.
const Zero Money = 0

// ErrInvalid is returned when a textual amount cannot be parsed.
var ErrInvalid = errors.New("invalid amount")

var (
	half     = decimal.New(5, -1)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// FromDecimal converts a major-unit decimal to Money, rounding half-up to
// two fractional digits. Amounts outside the int64 range of minor units fail
// with ErrInvalid.
func FromDecimal(d decimal.Decimal) (Money, error) {
	minor := d.Shift(2).Add(half).Floor()
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalid, d)
	}
	return Money(minor.IntPart()), nil
}

// FromMinor wraps an integer amount of minor units (e.g. a provider amount).
func FromMinor(n int64) Money {
	return Money(n)
}

// Parse reads a major-unit amount such as "3", "0.5" or "12.345".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 {
	return int64(m)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// MarshalJSON renders the amount as a 2dp string, matching how the rest of
// the API reports money.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// UnmarshalYAML accepts any numeric scalar.
func (m *Money) UnmarshalYAML(node *yaml.Node) error {
	v, err := Parse(node.Value)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
