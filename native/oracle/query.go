package oracle

import (
	"math"
	"math/big"
)

// PriceData is a query result. Timestamp is in seconds; storage keys use
// milliseconds internally but the query surface speaks seconds.
type PriceData struct {
	Price     *big.Int
	Timestamp uint64
}

// LastTimestampSec reports the last-accepted update timestamp in seconds, or
// zero when nothing has been accepted yet.
func (e *Engine) LastTimestampSec() (uint64, error) {
	last, err := e.state.LastTimestamp()
	if err != nil {
		return 0, err
	}
	return last / 1000, nil
}

// LastPrice returns the most recent composited price for an asset. Stale
// history, unknown assets, and expired records all read as absence.
func (e *Engine) LastPrice(asset Asset) (PriceData, bool, error) {
	slot, ok, err := e.slotFor(asset)
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	referenceTs, err := e.state.ObtainRecordTimestamp(e.nowMs())
	if err != nil {
		return PriceData{}, false, err
	}
	if referenceTs == 0 {
		return PriceData{}, false, nil
	}
	price, ok, err := e.getRecord(priceRecordKey(referenceTs, slot))
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	return PriceData{Price: price, Timestamp: referenceTs / 1000}, true, nil
}

// Price returns the composited price recorded for the resolution period
// containing timestampSec.
func (e *Engine) Price(asset Asset, timestampSec uint64) (PriceData, bool, error) {
	slot, ok, err := e.slotFor(asset)
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	normalizedMs, ok, err := e.normalizeQueryTimestamp(timestampSec)
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	price, ok, err := e.getRecord(priceRecordKey(normalizedMs, slot))
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	return PriceData{Price: price, Timestamp: normalizedMs / 1000}, true, nil
}

// XLastPrice returns the most recent cross rate between two assets.
func (e *Engine) XLastPrice(base, quote Asset) (PriceData, bool, error) {
	referenceTs, err := e.state.ObtainRecordTimestamp(e.nowMs())
	if err != nil {
		return PriceData{}, false, err
	}
	if referenceTs == 0 {
		return PriceData{}, false, nil
	}
	return e.crossAt(base, quote, referenceTs)
}

// XPrice returns the cross rate between two assets at the resolution period
// containing timestampSec.
func (e *Engine) XPrice(base, quote Asset, timestampSec uint64) (PriceData, bool, error) {
	normalizedMs, ok, err := e.normalizeQueryTimestamp(timestampSec)
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	return e.crossAt(base, quote, normalizedMs)
}

// Twap returns the arithmetic mean of the prices at the given number of
// consecutive resolution periods ending at the latest usable timestamp. A gap
// anywhere in the window yields absence; a partial average would be
// statistically meaningless.
func (e *Engine) Twap(asset Asset, records uint32) (*big.Int, bool, error) {
	slot, ok, err := e.slotFor(asset)
	if err != nil || !ok {
		return nil, false, err
	}
	return e.meanOverWindow(records, func(timestampMs uint64) (*big.Int, bool, error) {
		return e.getRecord(priceRecordKey(timestampMs, slot))
	})
}

// XTwap returns the mean cross rate between two assets over the given number
// of consecutive resolution periods, with the same gap semantics as Twap.
func (e *Engine) XTwap(base, quote Asset, records uint32) (*big.Int, bool, error) {
	return e.meanOverWindow(records, func(timestampMs uint64) (*big.Int, bool, error) {
		data, ok, err := e.crossAt(base, quote, timestampMs)
		if err != nil || !ok {
			return nil, false, err
		}
		return data.Price, true, nil
	})
}

func (e *Engine) slotFor(asset Asset) (uint8, bool, error) {
	return e.state.AssetIndex(asset)
}

// normalizeQueryTimestamp converts a second-precision query timestamp to the
// millisecond resolution bucket it falls in. Timestamps too large to convert
// read as absence rather than failing.
func (e *Engine) normalizeQueryTimestamp(timestampSec uint64) (uint64, bool, error) {
	resolution, err := e.state.ResolutionMs()
	if err != nil {
		return 0, false, err
	}
	if timestampSec > math.MaxUint64/1000 {
		return 0, false, nil
	}
	timestampMs := timestampSec * 1000
	return timestampMs - timestampMs%uint64(resolution), true, nil
}

func (e *Engine) crossAt(base, quote Asset, timestampMs uint64) (PriceData, bool, error) {
	baseSlot, ok, err := e.slotFor(base)
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	quoteSlot, ok, err := e.slotFor(quote)
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	basePrice, ok, err := e.getRecord(priceRecordKey(timestampMs, baseSlot))
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	quotePrice, ok, err := e.getRecord(priceRecordKey(timestampMs, quoteSlot))
	if err != nil || !ok {
		return PriceData{}, false, err
	}
	decimals, err := e.state.Decimals()
	if err != nil {
		return PriceData{}, false, err
	}
	cross, err := fixedDivFloor(basePrice, quotePrice, decimals)
	if err != nil {
		return PriceData{}, false, err
	}
	return PriceData{Price: cross, Timestamp: timestampMs / 1000}, true, nil
}

// meanOverWindow walks the window backwards one resolution at a time, summing
// the value produced for each period.
func (e *Engine) meanOverWindow(records uint32, valueAt func(uint64) (*big.Int, bool, error)) (*big.Int, bool, error) {
	if records == 0 {
		return nil, false, nil
	}
	referenceTs, err := e.state.ObtainRecordTimestamp(e.nowMs())
	if err != nil {
		return nil, false, err
	}
	if referenceTs == 0 {
		return nil, false, nil
	}
	resolution, err := e.state.ResolutionMs()
	if err != nil {
		return nil, false, err
	}
	sum := new(big.Int)
	timestampMs := referenceTs
	for i := uint32(0); i < records; i++ {
		value, ok, err := valueAt(timestampMs)
		if err != nil || !ok {
			return nil, false, err
		}
		sum.Add(sum, value)
		if i+1 < records {
			if timestampMs < uint64(resolution) {
				return nil, false, nil
			}
			timestampMs -= uint64(resolution)
		}
	}
	return sum.Quo(sum, new(big.Int).SetUint64(uint64(records))), true, nil
}
