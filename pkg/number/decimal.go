package number

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// BasisPoints 10000 bps = 100%
	BasisPoints = decimal.New(1, 4)
)

// Decimal parse decimal, returns zero on malformed input
func Decimal(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

// Uint64 decimal from unsigned integer
func Uint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// Quo integer division truncated toward zero, the amounts in this module are
// always non-negative so this is floor division
func Quo(d, d2 decimal.Decimal) decimal.Decimal {
	if d2.IsZero() {
		return decimal.Zero
	}

	q, _ := d.QuoRem(d2, 0)
	return q
}

// MulDiv d * m / div with truncation
func MulDiv(d, m, div decimal.Decimal) decimal.Decimal {
	return Quo(d.Mul(m), div)
}

// Bps portion of d expressed in basis points, truncated
func Bps(d decimal.Decimal, bps uint64) decimal.Decimal {
	return MulDiv(d, Uint64(bps), BasisPoints)
}

// Min smaller of a and b
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}

	return b
}

// IsInteger reports whether d has no fractional part
func IsInteger(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}

// Ceil ceil d at the given precision
func Ceil(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Shift(precision).Ceil().Shift(-precision)
}
