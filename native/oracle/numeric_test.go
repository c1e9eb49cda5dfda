package oracle

import (
	"errors"
	"math/big"
	"testing"
)

func TestPow10Bounds(t *testing.T) {
	one, err := pow10(0)
	if err != nil || one.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("pow10(0) = %v, %v", one, err)
	}
	scale, err := pow10(14)
	if err != nil {
		t.Fatalf("pow10(14): %v", err)
	}
	if scale.Cmp(big.NewInt(100_000_000_000_000)) != 0 {
		t.Fatalf("pow10(14) = %v", scale)
	}
	if _, err := pow10(38); err != nil {
		t.Fatalf("pow10(38) should fit the 128-bit envelope: %v", err)
	}
	if _, err := pow10(39); !errors.Is(err, ErrIntegerOverflow) {
		t.Fatalf("pow10(39) error = %v, want overflow", err)
	}
}

func TestCheckedMul128(t *testing.T) {
	out, err := checkedMul128(big.NewInt(1234), big.NewInt(-5))
	if err != nil || out.Int64() != -6170 {
		t.Fatalf("mul = %v, %v", out, err)
	}
	if _, err := checkedMul128(maxInt128, big.NewInt(2)); !errors.Is(err, ErrIntegerOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestCheckedDiv128TruncatesTowardZero(t *testing.T) {
	out, err := checkedDiv128(big.NewInt(-7), big.NewInt(2))
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if out.Int64() != -3 {
		t.Fatalf("div(-7, 2) = %v, want -3", out)
	}
	if _, err := checkedDiv128(big.NewInt(1), big.NewInt(0)); !errors.Is(err, ErrIntegerOverflow) {
		t.Fatalf("expected overflow on zero divisor, got %v", err)
	}
}

func TestFixedDivFloor(t *testing.T) {
	out, err := fixedDivFloor(big.NewInt(1), big.NewInt(3), 14)
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if out.Cmp(big.NewInt(33_333_333_333_333)) != 0 {
		t.Fatalf("1/3 at 14 decimals = %v", out)
	}

	// The intermediate product exceeds 128 bits; only the quotient must fit.
	wide := new(big.Int).Mul(big.NewInt(100), pow10MustFit(t, 14))
	out, err = fixedDivFloor(maxInt128, wide, 14)
	if err != nil {
		t.Fatalf("widened div: %v", err)
	}
	want := new(big.Int).Quo(maxInt128, big.NewInt(100))
	if out.Cmp(want) != 0 {
		t.Fatalf("widened div = %v, want %v", out, want)
	}
}

func TestFixedDivFloorRejections(t *testing.T) {
	cases := []struct {
		name string
		a, b *big.Int
	}{
		{"zero numerator", big.NewInt(0), big.NewInt(5)},
		{"negative numerator", big.NewInt(-1), big.NewInt(5)},
		{"zero divisor", big.NewInt(5), big.NewInt(0)},
		{"negative divisor", big.NewInt(5), big.NewInt(-1)},
		{"nil numerator", nil, big.NewInt(5)},
	}
	for _, tc := range cases {
		if _, err := fixedDivFloor(tc.a, tc.b, 14); !errors.Is(err, ErrIntegerOverflow) {
			t.Fatalf("%s: error = %v, want overflow", tc.name, err)
		}
	}
	// Result outgrowing the envelope is rejected even with valid operands.
	if _, err := fixedDivFloor(maxInt128, big.NewInt(1), 1); !errors.Is(err, ErrIntegerOverflow) {
		t.Fatalf("oversized quotient: error = %v, want overflow", err)
	}
}

func pow10MustFit(t *testing.T, decimals uint32) *big.Int {
	t.Helper()
	scale, err := pow10(decimals)
	if err != nil {
		t.Fatalf("pow10(%d): %v", decimals, err)
	}
	return scale
}
