// Package money provides decimal monetary amounts for the ledger and invoice
// engine. All amounts flowing through the system are decimal — binary floats
// are never used for money. Storage keeps full precision; rounding happens
// only at display time, to two places with banker's rounding.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a signed decimal monetary value in rupees.
// The zero value is ₹0.
type Amount struct {
	d decimal.Decimal
}

// Zero is the ₹0 amount.
var Zero = Amount{}

// FromFloat converts a float64 (e.g. from parsed LLM entities) into an Amount.
// The float is interpreted at rupee precision; values like 12000.0 round-trip
// exactly.
func FromFloat(f float64) Amount {
	return Amount{d: decimal.NewFromFloat(f)}
}

// FromInt converts an integer rupee value into an Amount.
func FromInt(n int64) Amount {
	return Amount{d: decimal.NewFromInt(n)}
}

// Parse parses a decimal string ("499.50"). Returns an error for anything
// that is not a valid decimal number.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustParse parses a decimal string and panics on failure. For use in tests
// and constant tables only.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromDecimal wraps a decimal.Decimal (e.g. scanned from postgres).
func FromDecimal(d decimal.Decimal) Amount { return Amount{d: d} }

// Decimal returns the underlying decimal value for database writes.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a − b.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// MulInt returns a × n. Used for line totals (unit price × quantity).
func (a Amount) MulInt(n int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(n))}
}

// MulRat returns a × (num/den) without leaving decimal space. Used for the
// GST surcharge (18% = 18/100).
func (a Amount) MulRat(num, den int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(num)).Div(decimal.NewFromInt(den))}
}

// Neg returns −a.
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// Equal reports whether a and b represent the same value, regardless of scale.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// Round2 returns a rounded to two decimal places with banker's rounding.
// This is the display/TTS precision; stored values keep full precision.
func (a Amount) Round2() Amount { return Amount{d: a.d.RoundBank(2)} }

// String renders the plain decimal form without a currency symbol
// ("500", "499.5").
func (a Amount) String() string { return a.d.String() }

// Rupees renders the amount for user-facing text with the rupee symbol and
// banker's rounding to two places. Whole amounts drop the fraction: ₹500,
// not ₹500.00.
func (a Amount) Rupees() string {
	r := a.d.RoundBank(2)
	if r.IsInteger() {
		return "₹" + r.StringFixed(0)
	}
	return "₹" + r.StringFixed(2)
}

// Float64 returns the closest float64 representation. Only for wire
// serialization of execution results, never for arithmetic.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// Scan implements sql.Scanner so NUMERIC columns scan straight into Amount.
func (a *Amount) Scan(v any) error { return a.d.Scan(v) }

// Value implements driver.Valuer for database writes.
func (a Amount) Value() (driver.Value, error) { return a.d.Value() }
