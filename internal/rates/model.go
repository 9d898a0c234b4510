package rates

import (
	"SynthLoans/internal/fixed"
)

// SkewFunc measures the signed imbalance between aggregate long and
// short open interest for a currency, from the short side's point of
// view: positive when shorts dominate. The exact weighting is not
// pinned down by the observed behavior, so it is a pluggable strategy;
// DefaultSkew is calibrated against the reference accrual scenario.
type SkewFunc func(long, short fixed.Dec) fixed.Dec

// skewEpsilon keeps the default skew denominator away from zero when a
// currency has no open interest on either side.
var skewEpsilon = fixed.MustParse("0.000000000000000001")

// DefaultSkew returns (short - long) / max(long, short, ε), the signed
// fraction of the book on the short side. A fully short book skews to
// exactly 1, a fully long book to exactly -1.
func DefaultSkew(long, short fixed.Dec) fixed.Dec {
	denom := fixed.Max(fixed.Max(long, short), skewEpsilon)
	return short.Sub(long).Div(denom)
}

// Params are the manager-owned rate inputs.
type Params struct {
	BaseBorrowRate        fixed.Dec
	BaseShortRate         fixed.Dec
	UtilisationMultiplier fixed.Dec
}

// Model computes per-currency annualized interest rates from base rates
// and system skew, raising the rate on the over-represented side.
type Model struct {
	skew SkewFunc
}

func NewModel(skew SkewFunc) *Model {
	if skew == nil {
		skew = DefaultSkew
	}
	return &Model{skew: skew}
}

// Rate returns the annualized rate for one side of a currency:
// base + multiplier * skew, floored at zero. The short side uses the
// skew as-is; the long side uses its negation, so whichever side is
// over-represented pays more.
func (m *Model) Rate(p Params, long, short fixed.Dec, isShort bool) fixed.Dec {
	base := p.BaseBorrowRate
	skew := m.skew(long, short)
	if isShort {
		base = p.BaseShortRate
	} else {
		skew = skew.Neg()
	}

	rate := base.Add(p.UtilisationMultiplier.Mul(skew))
	if rate.IsNegative() {
		return fixed.Zero()
	}
	return rate
}

// Accrue returns the interest owed on principal at an annualized rate
// over elapsed seconds: principal * rate * dt / secondsPerYear,
// truncating. Interest is simple on principal — accrued interest does
// not itself accrue, which is what makes two years of the reference
// scenario exactly double one year.
func Accrue(principal, rate fixed.Dec, elapsed int64) fixed.Dec {
	if elapsed <= 0 || principal.IsZero() || rate.IsZero() {
		return fixed.Zero()
	}
	return principal.Mul(rate).MulInt(elapsed).DivInt(fixed.SecondsPerYear)
}
