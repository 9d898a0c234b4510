package fixed_test

import (
	"encoding/json"
	"testing"

	"SynthLoans/internal/fixed"
)

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1"},
		{"1.5", "1.5"},
		{"-0.05", "-0.05"},
		{"0.333333333333333333", "0.333333333333333333"},
		{"1000000", "1000000"},
	}
	for _, tc := range cases {
		d, err := fixed.Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got := d.String(); got != tc.want {
			t.Errorf("Parse(%q).String(): got %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsTooManyDigits(t *testing.T) {
	if _, err := fixed.Parse("0.1234567890123456789"); err == nil {
		t.Fatal("expected error for 19 fractional digits")
	}
}

func TestMulTruncatesTowardZero(t *testing.T) {
	// 1/3 * 1/3 = 0.111...0888... truncated, not rounded.
	third := fixed.MustParse("0.333333333333333333")
	got := third.Mul(third)
	want := fixed.MustParse("0.111111111111111110")
	if !got.Equal(want) {
		t.Errorf("Mul: got %s, want %s", got, want)
	}

	// Negative values truncate toward zero, not toward -inf.
	negThird := third.Neg()
	gotNeg := negThird.Mul(third)
	if !gotNeg.Equal(want.Neg()) {
		t.Errorf("negative Mul: got %s, want %s", gotNeg, want.Neg())
	}
}

func TestDivTruncatesTowardZero(t *testing.T) {
	got := fixed.FromInt64(1).Div(fixed.FromInt64(3))
	want := fixed.MustParse("0.333333333333333333")
	if !got.Equal(want) {
		t.Errorf("1/3: got %s, want %s", got, want)
	}

	gotNeg := fixed.FromInt64(-1).Div(fixed.FromInt64(3))
	if !gotNeg.Equal(want.Neg()) {
		t.Errorf("-1/3: got %s, want %s", gotNeg, want.Neg())
	}
}

func TestMulIntDivInt(t *testing.T) {
	d := fixed.MustParse("0.5")
	if got := d.MulInt(4); !got.Equal(fixed.FromInt64(2)) {
		t.Errorf("0.5*4: got %s, want 2", got)
	}
	if got := fixed.FromInt64(1).DivInt(3); !got.Equal(fixed.MustParse("0.333333333333333333")) {
		t.Errorf("1/3 (int): got %s", got)
	}
}

func TestRawRoundTrip(t *testing.T) {
	d := fixed.MustParse("-12.000000000000000345")
	parsed, err := fixed.ParseRaw(d.RawString())
	if err != nil {
		t.Fatalf("ParseRaw: %v", err)
	}
	if !parsed.Equal(d) {
		t.Errorf("raw round trip: got %s, want %s", parsed, d)
	}
}

func TestCompare(t *testing.T) {
	a := fixed.MustParse("1.5")
	b := fixed.FromInt64(2)
	if !a.LessThan(b) || b.LessThan(a) || a.Equal(b) {
		t.Errorf("comparison of %s and %s broken", a, b)
	}
	if !fixed.Max(a, b).Equal(b) || !fixed.Min(a, b).Equal(a) {
		t.Error("Max/Min broken")
	}
}

func TestZeroValueIsZero(t *testing.T) {
	var d fixed.Dec
	if !d.IsZero() {
		t.Error("zero value should be 0")
	}
	if got := d.Add(fixed.One()); !got.Equal(fixed.One()) {
		t.Errorf("zero value arithmetic: got %s", got)
	}
}

func TestJSON(t *testing.T) {
	d := fixed.MustParse("1.25")
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"1.25"` {
		t.Errorf("marshal: got %s, want \"1.25\"", data)
	}

	var back fixed.Dec
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip: got %s, want %s", back, d)
	}

	// Bare numbers are accepted too.
	if err := json.Unmarshal([]byte("2.5"), &back); err != nil {
		t.Fatalf("unmarshal bare number: %v", err)
	}
	if !back.Equal(fixed.MustParse("2.5")) {
		t.Errorf("bare number: got %s", back)
	}
}
