package oracle

import "math/big"

// All stored values are signed 128-bit fixed-point integers. Go has no native
// int128, so arithmetic runs on big.Int with every result checked against the
// i128 envelope, mirroring the checked operations of the host chain.

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	hundred   = big.NewInt(100)
)

func fitsInt128(v *big.Int) bool {
	return v.Cmp(minInt128) >= 0 && v.Cmp(maxInt128) <= 0
}

// pow10 returns 10^decimals, failing when the scale factor leaves the i128 range.
func pow10(decimals uint32) (*big.Int, error) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	if !fitsInt128(scale) {
		return nil, ErrIntegerOverflow
	}
	return scale, nil
}

func checkedMul128(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(a, b)
	if !fitsInt128(out) {
		return nil, ErrIntegerOverflow
	}
	return out, nil
}

func checkedSub128(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(a, b)
	if !fitsInt128(out) {
		return nil, ErrIntegerOverflow
	}
	return out, nil
}

// checkedDiv128 truncates toward zero like the host chain's checked division.
func checkedDiv128(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrIntegerOverflow
	}
	return new(big.Int).Quo(a, b), nil
}

// fixedDivFloor computes floor(a * 10^decimals / b) for positive operands. The
// intermediate product is widened past 128 bits; only the scale factor and the
// final quotient are bounded. Non-positive operands are rejected outright, so
// callers must pre-validate signs.
func fixedDivFloor(a, b *big.Int, decimals uint32) (*big.Int, error) {
	if a == nil || b == nil || a.Sign() <= 0 || b.Sign() <= 0 {
		return nil, ErrIntegerOverflow
	}
	scale, err := pow10(decimals)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(a, scale)
	out.Quo(out, b)
	if !fitsInt128(out) {
		return nil, ErrIntegerOverflow
	}
	return out, nil
}
