package oracle

import (
	"context"
	"math"
	"math/big"
	"testing"
)

func seedTwoBatches(t *testing.T, f *fixture) (uint64, uint64) {
	t.Helper()
	first := testBatchTs
	second := testBatchTs + uint64(testResolutionMs)
	if err := f.engine.SetPrice(context.Background(), []*big.Int{rate(110), rate(105)}, first); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	f.nowMs = second
	f.fx.prices["MXN"] = FxPriceData{Price: big.NewInt(5_700_000_000_000), Timestamp: second / 1000}
	if err := f.engine.SetPrice(context.Background(), []*big.Int{rate(111), rate(105)}, second); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	return first, second
}

func TestPriceFloorsToResolution(t *testing.T) {
	f := newFixture(t)
	first, _ := seedTwoBatches(t, f)

	// Any second inside the bucket resolves to the bucket's price.
	for _, offset := range []uint64{0, 1, 299} {
		data, ok, err := f.engine.Price(SymbolAsset("CETES"), first/1000+offset)
		if err != nil || !ok {
			t.Fatalf("offset %d: ok=%v err=%v", offset, ok, err)
		}
		if data.Timestamp != first/1000 {
			t.Fatalf("offset %d: timestamp = %d, want %d", offset, data.Timestamp, first/1000)
		}
		if data.Price.Cmp(big.NewInt(6_270_000_000_000)) != 0 {
			t.Fatalf("offset %d: price = %v", offset, data.Price)
		}
	}
}

func TestPriceAbsentForEmptyBucket(t *testing.T) {
	f := newFixture(t)
	first, _ := seedTwoBatches(t, f)
	if _, ok, err := f.engine.Price(SymbolAsset("CETES"), first/1000-1); err != nil || ok {
		t.Fatalf("earlier bucket: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.engine.Price(SymbolAsset("UNKNOWN"), first/1000); err != nil || ok {
		t.Fatalf("unknown asset: ok=%v err=%v", ok, err)
	}
	// A timestamp too large to widen to milliseconds reads as absence.
	if _, ok, err := f.engine.Price(SymbolAsset("CETES"), math.MaxUint64); err != nil || ok {
		t.Fatalf("oversized timestamp: ok=%v err=%v", ok, err)
	}
}

func TestLastPriceGoesStale(t *testing.T) {
	f := newFixture(t)
	_, second := seedTwoBatches(t, f)

	f.nowMs = second + 2*uint64(testResolutionMs) - 1
	if _, ok, err := f.engine.LastPrice(SymbolAsset("CETES")); err != nil || !ok {
		t.Fatalf("within window: ok=%v err=%v", ok, err)
	}
	f.nowMs = second + 2*uint64(testResolutionMs)
	if _, ok, err := f.engine.LastPrice(SymbolAsset("CETES")); err != nil || ok {
		t.Fatalf("past window: ok=%v err=%v", ok, err)
	}
}

func TestCrossRates(t *testing.T) {
	f := newFixture(t)
	_, second := seedTwoBatches(t, f)

	data, ok, err := f.engine.XLastPrice(SymbolAsset("CETES"), SymbolAsset("USTBILL"))
	if err != nil || !ok {
		t.Fatalf("cross last: ok=%v err=%v", ok, err)
	}
	base := big.NewInt(6_327_000_000_000) // 0.057 * 1.11
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(testDecimals)), nil)
	want := new(big.Int).Mul(base, scale)
	want.Quo(want, rate(105))
	if data.Price.Cmp(want) != 0 {
		t.Fatalf("cross = %v, want %v", data.Price, want)
	}
	if data.Timestamp != second/1000 {
		t.Fatalf("cross timestamp = %d", data.Timestamp)
	}

	// The same pair at an explicit timestamp in the first bucket.
	data, ok, err = f.engine.XPrice(SymbolAsset("CETES"), SymbolAsset("USTBILL"), testBatchTs/1000)
	if err != nil || !ok {
		t.Fatalf("cross at: ok=%v err=%v", ok, err)
	}
	want = new(big.Int).Mul(big.NewInt(6_270_000_000_000), scale)
	want.Quo(want, rate(105))
	if data.Price.Cmp(want) != 0 {
		t.Fatalf("cross at first bucket = %v, want %v", data.Price, want)
	}

	if _, ok, err := f.engine.XPrice(SymbolAsset("CETES"), SymbolAsset("UNKNOWN"), second/1000); err != nil || ok {
		t.Fatalf("unknown quote: ok=%v err=%v", ok, err)
	}
}

func TestTwap(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)

	value, ok, err := f.engine.Twap(SymbolAsset("CETES"), 2)
	if err != nil || !ok {
		t.Fatalf("twap: ok=%v err=%v", ok, err)
	}
	sum := new(big.Int).Add(big.NewInt(6_270_000_000_000), big.NewInt(6_327_000_000_000))
	want := sum.Quo(sum, big.NewInt(2))
	if value.Cmp(want) != 0 {
		t.Fatalf("twap = %v, want %v", value, want)
	}

	// A single-record window degenerates to the latest price.
	value, ok, err = f.engine.Twap(SymbolAsset("CETES"), 1)
	if err != nil || !ok {
		t.Fatalf("twap(1): ok=%v err=%v", ok, err)
	}
	if value.Cmp(big.NewInt(6_327_000_000_000)) != 0 {
		t.Fatalf("twap(1) = %v", value)
	}
}

func TestTwapGapMeansAbsence(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	// Only two consecutive records exist; a three-record window has a gap.
	if _, ok, err := f.engine.Twap(SymbolAsset("CETES"), 3); err != nil || ok {
		t.Fatalf("gapped twap: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.engine.Twap(SymbolAsset("CETES"), 0); err != nil || ok {
		t.Fatalf("zero-record twap: ok=%v err=%v", ok, err)
	}
}

func TestXTwap(t *testing.T) {
	f := newFixture(t)
	seedTwoBatches(t, f)
	value, ok, err := f.engine.XTwap(SymbolAsset("CETES"), SymbolAsset("USTBILL"), 2)
	if err != nil || !ok {
		t.Fatalf("xtwap: ok=%v err=%v", ok, err)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(testDecimals)), nil)
	crossOf := func(base *big.Int) *big.Int {
		out := new(big.Int).Mul(base, scale)
		return out.Quo(out, rate(105))
	}
	sum := new(big.Int).Add(crossOf(big.NewInt(6_270_000_000_000)), crossOf(big.NewInt(6_327_000_000_000)))
	want := sum.Quo(sum, big.NewInt(2))
	if value.Cmp(want) != 0 {
		t.Fatalf("xtwap = %v, want %v", value, want)
	}
}

func TestQueriesBeforeAnyUpdate(t *testing.T) {
	f := newFixture(t)
	if _, ok, err := f.engine.LastPrice(SymbolAsset("CETES")); err != nil || ok {
		t.Fatalf("last price: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.engine.XLastPrice(SymbolAsset("CETES"), SymbolAsset("USTBILL")); err != nil || ok {
		t.Fatalf("cross last: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.engine.Twap(SymbolAsset("CETES"), 1); err != nil || ok {
		t.Fatalf("twap: ok=%v err=%v", ok, err)
	}
	if last, err := f.engine.LastTimestampSec(); err != nil || last != 0 {
		t.Fatalf("last timestamp = %d, %v", last, err)
	}
}
