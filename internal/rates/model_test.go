package rates_test

import (
	"testing"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/rates"
)

func TestDefaultSkew(t *testing.T) {
	cases := []struct {
		name        string
		long, short string
		want        string
	}{
		{"fully short", "0", "100", "1"},
		{"fully long", "100", "0", "-1"},
		{"balanced", "100", "100", "0"},
		{"short heavy", "50", "100", "0.5"},
		{"long heavy", "100", "50", "-0.5"},
		{"empty book", "0", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rates.DefaultSkew(fixed.MustParse(tc.long), fixed.MustParse(tc.short))
			if !got.Equal(fixed.MustParse(tc.want)) {
				t.Errorf("skew(%s, %s): got %s, want %s", tc.long, tc.short, got, tc.want)
			}
		})
	}
}

func TestRateSides(t *testing.T) {
	model := rates.NewModel(nil)
	params := rates.Params{
		BaseBorrowRate:        fixed.MustParse("0.01"),
		BaseShortRate:         fixed.MustParse("0.005"),
		UtilisationMultiplier: fixed.MustParse("0.1"),
	}

	long := fixed.FromInt64(50)
	short := fixed.FromInt64(100)

	// Skew is +0.5: shorts are over-represented, so shorts pay more
	// and longs pay less.
	shortRate := model.Rate(params, long, short, true)
	if want := fixed.MustParse("0.055"); !shortRate.Equal(want) {
		t.Errorf("short rate: got %s, want %s", shortRate, want)
	}
	longRate := model.Rate(params, long, short, false)
	if want := fixed.MustParse("0"); !longRate.Equal(want) {
		// 0.01 - 0.1*0.5 = -0.04, floored.
		t.Errorf("long rate: got %s, want %s", longRate, want)
	}
}

func TestRateNeverNegative(t *testing.T) {
	model := rates.NewModel(nil)
	params := rates.Params{
		BaseBorrowRate:        fixed.Zero(),
		BaseShortRate:         fixed.Zero(),
		UtilisationMultiplier: fixed.One(),
	}
	// Fully short book: the long side would be base - 1.
	rate := model.Rate(params, fixed.Zero(), fixed.FromInt64(10), false)
	if !rate.IsZero() {
		t.Errorf("long rate should floor at zero, got %s", rate)
	}
}

func TestCustomSkewFunc(t *testing.T) {
	flat := func(long, short fixed.Dec) fixed.Dec { return fixed.Zero() }
	model := rates.NewModel(flat)
	params := rates.Params{
		BaseBorrowRate:        fixed.MustParse("0.02"),
		UtilisationMultiplier: fixed.One(),
	}
	rate := model.Rate(params, fixed.Zero(), fixed.FromInt64(1000), false)
	if !rate.Equal(fixed.MustParse("0.02")) {
		t.Errorf("flat skew should leave base rate, got %s", rate)
	}
}

// ==== reference accrual scenario ====
// A lone short of principal 1 with base short rate 0 and multiplier 1/3
// accrues exactly a third after one year and exactly two thirds after
// two — simple interest on principal only.
func TestAccrueReferenceScenario(t *testing.T) {
	model := rates.NewModel(nil)
	params := rates.Params{
		BaseShortRate:         fixed.Zero(),
		UtilisationMultiplier: fixed.MustParse("0.333333333333333333"),
	}
	principal := fixed.One()
	rate := model.Rate(params, fixed.Zero(), principal, true)

	oneYear := rates.Accrue(principal, rate, fixed.SecondsPerYear)
	if want := fixed.MustParse("0.333333333333333333"); !oneYear.Equal(want) {
		t.Errorf("one year: got %s, want %s", oneYear, want)
	}

	secondYear := rates.Accrue(principal, rate, fixed.SecondsPerYear)
	total := oneYear.Add(secondYear)
	if want := fixed.MustParse("0.666666666666666666"); !total.Equal(want) {
		t.Errorf("two years: got %s, want %s", total, want)
	}
}

func TestAccrueZeroCases(t *testing.T) {
	rate := fixed.MustParse("0.05")
	if got := rates.Accrue(fixed.Zero(), rate, 1000); !got.IsZero() {
		t.Errorf("zero principal: got %s", got)
	}
	if got := rates.Accrue(fixed.One(), fixed.Zero(), 1000); !got.IsZero() {
		t.Errorf("zero rate: got %s", got)
	}
	if got := rates.Accrue(fixed.One(), rate, 0); !got.IsZero() {
		t.Errorf("zero elapsed: got %s", got)
	}
}
