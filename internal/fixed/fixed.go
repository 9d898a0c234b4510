package fixed

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Digits is the number of fractional digits carried by every Dec.
const Digits = 18

// SecondsPerYear is the accrual year used to convert annualized rates
// to per-second terms.
const SecondsPerYear = 31_536_000

var (
	unit    = big.NewInt(1_000_000_000_000_000_000) // 10^18
	bigZero = big.NewInt(0)
)

// Dec is an immutable fixed-point value with 18 fractional digits,
// backed by a scaled big.Int. All arithmetic truncates toward zero;
// the liquidation scenarios depend on that rounding being deterministic.
// The zero value of Dec is 0.
type Dec struct {
	i *big.Int
}

func (d Dec) raw() *big.Int {
	if d.i == nil {
		return bigZero
	}
	return d.i
}

// Zero returns the Dec 0.
func Zero() Dec { return Dec{} }

// One returns the Dec 1.0.
func One() Dec { return Dec{i: new(big.Int).Set(unit)} }

// FromInt64 returns n as a Dec (whole units).
func FromInt64(n int64) Dec {
	return Dec{i: new(big.Int).Mul(big.NewInt(n), unit)}
}

// FromRaw returns a Dec from already-scaled base units (value * 10^18).
// The argument is copied.
func FromRaw(raw *big.Int) Dec {
	return Dec{i: new(big.Int).Set(raw)}
}

// Parse converts a human-readable decimal string ("1.25", "-0.05") into
// a Dec. Values with more than 18 fractional digits are rejected rather
// than silently rounded.
func Parse(s string) (Dec, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Dec{}, fmt.Errorf("parse fixed-point %q: %w", s, err)
	}
	shifted := d.Shift(Digits)
	if !shifted.IsInteger() {
		return Dec{}, fmt.Errorf("parse fixed-point %q: more than %d fractional digits", s, Digits)
	}
	return Dec{i: shifted.BigInt()}, nil
}

// MustParse is Parse for compile-time constants; it panics on bad input.
func MustParse(s string) Dec {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Add returns d + o.
func (d Dec) Add(o Dec) Dec {
	return Dec{i: new(big.Int).Add(d.raw(), o.raw())}
}

// Sub returns d - o.
func (d Dec) Sub(o Dec) Dec {
	return Dec{i: new(big.Int).Sub(d.raw(), o.raw())}
}

// Mul returns d * o, truncated toward zero at 18 digits.
func (d Dec) Mul(o Dec) Dec {
	p := new(big.Int).Mul(d.raw(), o.raw())
	return Dec{i: p.Quo(p, unit)}
}

// Div returns d / o, truncated toward zero at 18 digits.
// Division by zero panics, as with big.Int.
func (d Dec) Div(o Dec) Dec {
	p := new(big.Int).Mul(d.raw(), unit)
	return Dec{i: p.Quo(p, o.raw())}
}

// MulInt returns d * n for an unscaled integer n. Exact.
func (d Dec) MulInt(n int64) Dec {
	return Dec{i: new(big.Int).Mul(d.raw(), big.NewInt(n))}
}

// DivInt returns d / n for an unscaled integer n, truncated toward zero.
func (d Dec) DivInt(n int64) Dec {
	return Dec{i: new(big.Int).Quo(d.raw(), big.NewInt(n))}
}

// Neg returns -d.
func (d Dec) Neg() Dec {
	return Dec{i: new(big.Int).Neg(d.raw())}
}

// Abs returns |d|.
func (d Dec) Abs() Dec {
	return Dec{i: new(big.Int).Abs(d.raw())}
}

// Cmp returns -1, 0 or +1 comparing d to o.
func (d Dec) Cmp(o Dec) int { return d.raw().Cmp(o.raw()) }

// Equal reports d == o.
func (d Dec) Equal(o Dec) bool { return d.Cmp(o) == 0 }

// LessThan reports d < o.
func (d Dec) LessThan(o Dec) bool { return d.Cmp(o) < 0 }

// GreaterThan reports d > o.
func (d Dec) GreaterThan(o Dec) bool { return d.Cmp(o) > 0 }

// Sign returns -1, 0 or +1.
func (d Dec) Sign() int { return d.raw().Sign() }

// IsZero reports d == 0.
func (d Dec) IsZero() bool { return d.Sign() == 0 }

// IsNegative reports d < 0.
func (d Dec) IsNegative() bool { return d.Sign() < 0 }

// IsPositive reports d > 0.
func (d Dec) IsPositive() bool { return d.Sign() > 0 }

// Max returns the larger of a and b.
func Max(a, b Dec) Dec {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Dec) Dec {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// RawString returns the scaled base-unit integer as a decimal string,
// suitable for NUMERIC(78,0) storage.
func (d Dec) RawString() string { return d.raw().String() }

// ParseRaw is the inverse of RawString.
func ParseRaw(s string) (Dec, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Dec{}, fmt.Errorf("parse raw fixed-point %q", s)
	}
	return Dec{i: i}, nil
}

// String renders the value as a plain decimal, trimming trailing
// fractional zeros ("1.5", "0.333333333333333333", "-2").
func (d Dec) String() string {
	return decimal.NewFromBigInt(d.raw(), -Digits).String()
}

// Float64 returns an inexact float rendering, for metrics gauges only.
func (d Dec) Float64() float64 {
	f, _ := decimal.NewFromBigInt(d.raw(), -Digits).Float64()
	return f
}

// MarshalJSON renders the value as a JSON string to avoid float
// precision loss in consumers.
func (d Dec) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (d *Dec) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
