package oracle

import (
	"context"
	"fmt"
	"math"
	"math/big"
)

// BaseFxSymbol is the designated base currency. Updates priced in it resolve
// to a rate of exactly 1.0 without consulting the external oracle.
const BaseFxSymbol = "USD"

// FxPriceData is the answer of the external oracle's lastprice call. The
// timestamp is in seconds.
type FxPriceData struct {
	Price     *big.Int
	Timestamp uint64
}

// FxOracle is the narrow contract the engine consumes from the external price
// feed. Implementations perform one synchronous read; ok reports whether the
// oracle knows the symbol at all.
type FxOracle interface {
	LastPrice(ctx context.Context, symbol string) (FxPriceData, bool, error)
}

// resolveFxPrice obtains the USD rate for an FX symbol, validated against the
// timestamp of the update being priced. The drift bound is anchored on that
// exact moment, not on "now", so a delayed oracle cannot slip stale data into
// a backdated update.
func (e *Engine) resolveFxPrice(ctx context.Context, symbol string, targetMs uint64, decimals uint32, resolutionMs uint32) (*big.Int, error) {
	if symbol == BaseFxSymbol {
		return pow10(decimals)
	}
	if e.fx == nil {
		return nil, ErrFxOracleUnavailable
	}
	data, ok, err := e.fx.LastPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFxOracleUnavailable, err)
	}
	if !ok || data.Timestamp == 0 {
		return nil, ErrStaleFxPrice
	}
	if data.Timestamp > math.MaxUint64/1000 {
		return nil, ErrIntegerOverflow
	}
	oracleMs := data.Timestamp * 1000
	if targetMs > 0 {
		drift := oracleMs - targetMs
		if oracleMs < targetMs {
			drift = targetMs - oracleMs
		}
		if drift > 2*uint64(resolutionMs) {
			return nil, ErrFxOracleTimestampDrift
		}
	}
	if data.Price == nil || data.Price.Sign() <= 0 {
		return nil, ErrInvalidFxPrice
	}
	if !fitsInt128(data.Price) {
		return nil, ErrIntegerOverflow
	}
	return data.Price, nil
}
