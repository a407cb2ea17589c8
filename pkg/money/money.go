// Package money represents currency amounts as integer minor units (paise,
// cents, kobo) so ledger arithmetic is exact. Decimal strings exist only at
// the API boundary; everything past Parse is int64.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// minorUnitExponent is fixed at 2 for every currency the platform sells in.
const minorUnitExponent = 2

type Money struct {
	Amount   int64  // minor units
	Currency string // ISO 4217 code
}

func New(minorUnits int64, currency string) Money {
	return Money{Amount: minorUnits, Currency: currency}
}

func Zero(currency string) Money {
	return Money{Amount: 0, Currency: currency}
}

// Parse converts a boundary decimal string ("500.00") into minor units.
// Anything with more precision than the minor unit is rejected rather than
// silently rounded.
func Parse(value string, currency string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	shifted := d.Shift(minorUnitExponent)
	if !shifted.IsInteger() {
		return Money{}, fmt.Errorf("%w: %q has sub-minor-unit precision", ErrInvalidAmount, value)
	}

	return Money{Amount: shifted.IntPart(), Currency: currency}, nil
}

// Format renders the amount as a decimal string for API responses.
func (m Money) Format() string {
	return decimal.New(m.Amount, -minorUnitExponent).StringFixed(minorUnitExponent)
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Neg returns the amount with inverted sign, used when building compensating
// ledger entries.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// MulRat multiplies by num/den, rounding half-even to the minor unit.
func (m Money) MulRat(num, den int64) (Money, error) {
	if den == 0 {
		return Money{}, fmt.Errorf("%w: zero denominator", ErrInvalidAmount)
	}
	result := decimal.NewFromInt(m.Amount).
		Mul(decimal.NewFromInt(num)).
		DivRound(decimal.NewFromInt(den), 0)
	return Money{Amount: result.IntPart(), Currency: m.Currency}, nil
}

// Cmp returns -1, 0 or 1. Comparing across currencies is a programming error
// surfaced as ErrCurrencyMismatch.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }
func (m Money) IsZero() bool     { return m.Amount == 0 }

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.Format(), Currency: m.Currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
