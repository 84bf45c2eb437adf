// Package money holds the fixed-scale decimal rules shared by the ledger.
package money

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits stored for every amount (NUMERIC(12,2)).
const Scale = 2

var (
	hundred = decimal.NewFromInt(100)

	ErrNegative = errors.New("amount must not be negative")
	ErrScale    = errors.New("amount has more than 2 fractional digits")
	ErrPercent  = errors.New("percentage must be between 0 and 100")
)

// Check validates a ledger amount: non-negative and at most Scale fractional digits.
func Check(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegative
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return ErrScale
	}
	return nil
}

// CheckPercent validates a percentage in the closed range [0, 100].
func CheckPercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return ErrPercent
	}
	return nil
}

// Percent returns amount * p / 100 rounded half-up to Scale.
func Percent(amount, p decimal.Decimal) decimal.Decimal {
	if p.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(p).Div(hundred).Round(Scale)
}

// WithPercent returns amount plus its percentage share.
func WithPercent(amount, p decimal.Decimal) decimal.Decimal {
	return amount.Add(Percent(amount, p))
}

func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Format renders an amount with exactly Scale fractional digits.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}

// Shortfall renders the user-facing missing amount text.
func Shortfall(required, available decimal.Decimal) string {
	return fmt.Sprintf("short by %s", Format(required.Sub(available)))
}

// Parse reads a user-supplied amount string and validates it with Check.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid amount %q", s)
	}
	if err := Check(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
