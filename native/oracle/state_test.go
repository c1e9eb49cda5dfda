package oracle

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"yieldoracle/storage"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	store := storage.NewLedgerStore(storage.NewMemDB(), nil)
	return NewState(store)
}

func configureTestState(t *testing.T, state *State) {
	t.Helper()
	err := state.Configure(ConfigData{
		Admin:                    "test-admin",
		Period:                   testPeriodMs,
		BaseAsset:                SymbolAsset("USD"),
		Decimals:                 testDecimals,
		Resolution:               testResolutionMs,
		FxOracleAddress:          "http://fx.example",
		MaxYieldDeviationPercent: 10,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
}

func TestConfigureOnce(t *testing.T) {
	state := newTestState(t)
	if ok, err := state.IsInitialized(); err != nil || ok {
		t.Fatalf("fresh state initialized: ok=%v err=%v", ok, err)
	}
	configureTestState(t, state)
	if ok, err := state.IsInitialized(); err != nil || !ok {
		t.Fatalf("configured state not initialized: ok=%v err=%v", ok, err)
	}
	err := state.Configure(ConfigData{Admin: "other", Period: 1, Resolution: 1})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second configure: %v", err)
	}

	admin, ok, err := state.Admin()
	if err != nil || !ok || admin != "test-admin" {
		t.Fatalf("admin = %q, ok=%v, err=%v", admin, ok, err)
	}
	base, err := state.BaseAsset()
	if err != nil || !base.Equal(SymbolAsset("USD")) {
		t.Fatalf("base asset = %v, %v", base, err)
	}
	decimals, err := state.Decimals()
	if err != nil || decimals != testDecimals {
		t.Fatalf("decimals = %d, %v", decimals, err)
	}
	resolution, err := state.ResolutionMs()
	if err != nil || resolution != testResolutionMs {
		t.Fatalf("resolution = %d, %v", resolution, err)
	}
	address, err := state.FxOracleAddress()
	if err != nil || address != "http://fx.example" {
		t.Fatalf("fx oracle address = %q, %v", address, err)
	}
}

func TestConfigureValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  ConfigData
	}{
		{"empty admin", ConfigData{Period: 1, Resolution: 1}},
		{"zero resolution", ConfigData{Admin: "a", Period: 1}},
		{"zero period", ConfigData{Admin: "a", Resolution: 1}},
		{"oversized decimals", ConfigData{Admin: "a", Period: 1, Resolution: 1, Decimals: 39}},
	}
	for _, tc := range cases {
		state := newTestState(t)
		if err := state.Configure(tc.cfg); err == nil {
			t.Fatalf("%s: configure succeeded", tc.name)
		}
	}
}

func TestAccessorsBeforeConfigure(t *testing.T) {
	state := newTestState(t)
	if _, err := state.Decimals(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("decimals error = %v", err)
	}
	if _, err := state.ResolutionMs(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("resolution error = %v", err)
	}
	if _, err := state.BaseAsset(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("base asset error = %v", err)
	}
}

func TestAddAssetsRegistersSlotsInOrder(t *testing.T) {
	state := newTestState(t)
	configureTestState(t, state)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	assets := []Asset{SymbolAsset("CETES"), AddressAsset(addr), SymbolAsset("GILT")}
	if err := state.AddAssets(assets, []string{"MXN", "MXN", "GBP"}); err != nil {
		t.Fatalf("add assets: %v", err)
	}

	registered, err := state.Assets()
	if err != nil || len(registered) != 3 {
		t.Fatalf("assets = %v, %v", registered, err)
	}
	for i, asset := range assets {
		if !registered[i].Equal(asset) {
			t.Fatalf("slot %d holds %v, want %v", i, registered[i], asset)
		}
		slot, ok, err := state.AssetIndex(asset)
		if err != nil || !ok || slot != uint8(i) {
			t.Fatalf("index of %v = %d, ok=%v, err=%v", asset, slot, ok, err)
		}
	}

	fxs, err := state.AssetFxSymbols()
	if err != nil {
		t.Fatalf("fx symbols: %v", err)
	}
	if len(fxs) != 3 || fxs[0] != "MXN" || fxs[1] != "MXN" || fxs[2] != "GBP" {
		t.Fatalf("fx symbols = %v", fxs)
	}

	// MXN appears twice in the pairing but registers one dense slot.
	slot, ok, err := state.FxIndex("mxn")
	if err != nil || !ok || slot != 0 {
		t.Fatalf("MXN slot = %d, ok=%v, err=%v", slot, ok, err)
	}
	slot, ok, err = state.FxIndex("GBP")
	if err != nil || !ok || slot != 1 {
		t.Fatalf("GBP slot = %d, ok=%v, err=%v", slot, ok, err)
	}
}

func TestAddAssetsRejections(t *testing.T) {
	state := newTestState(t)
	configureTestState(t, state)
	if err := state.AddAssets([]Asset{SymbolAsset("CETES")}, []string{"MXN"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := state.AddAssets(nil, nil); !errors.Is(err, ErrFxArrayLengthMismatch) {
		t.Fatalf("empty batch: %v", err)
	}
	if err := state.AddAssets([]Asset{SymbolAsset("A"), SymbolAsset("B")}, []string{"USD"}); !errors.Is(err, ErrFxArrayLengthMismatch) {
		t.Fatalf("length mismatch: %v", err)
	}
	if err := state.AddAssets([]Asset{SymbolAsset("A")}, []string{"  "}); !errors.Is(err, ErrFxArrayLengthMismatch) {
		t.Fatalf("blank symbol: %v", err)
	}
	if err := state.AddAssets([]Asset{SymbolAsset("CETES")}, []string{"MXN"}); !errors.Is(err, ErrAssetAlreadyExists) {
		t.Fatalf("existing asset: %v", err)
	}
	if err := state.AddAssets([]Asset{SymbolAsset("A"), SymbolAsset("A")}, []string{"USD", "USD"}); !errors.Is(err, ErrAssetAlreadyExists) {
		t.Fatalf("in-batch duplicate: %v", err)
	}
	// Nothing from the rejected batches stuck.
	if _, ok, err := state.AssetIndex(SymbolAsset("A")); err != nil || ok {
		t.Fatalf("rejected asset registered: ok=%v err=%v", ok, err)
	}
}

func TestAddAssetsSlotLimit(t *testing.T) {
	state := newTestState(t)
	configureTestState(t, state)
	assets := make([]Asset, registrySlots)
	fxs := make([]string, registrySlots)
	for i := range assets {
		assets[i] = SymbolAsset(fmt.Sprintf("ASSET%03d", i))
		fxs[i] = "USD"
	}
	if err := state.AddAssets(assets, fxs); err != nil {
		t.Fatalf("fill registry: %v", err)
	}
	err := state.AddAssets([]Asset{SymbolAsset("ONEMORE")}, []string{"USD"})
	if !errors.Is(err, ErrAssetLimitExceeded) {
		t.Fatalf("overflow batch: %v", err)
	}
}

func TestObtainRecordTimestamp(t *testing.T) {
	state := newTestState(t)
	configureTestState(t, state)
	resolution := uint64(testResolutionMs)

	ts, err := state.ObtainRecordTimestamp(testBatchTs)
	if err != nil || ts != 0 {
		t.Fatalf("no marker: ts=%d err=%v", ts, err)
	}

	if err := state.SetLastTimestamp(testBatchTs); err != nil {
		t.Fatalf("set marker: %v", err)
	}
	cases := []struct {
		name  string
		nowMs uint64
		want  uint64
	}{
		{"exactly at marker", testBatchTs, testBatchTs},
		{"inside window", testBatchTs + 2*resolution - 1, testBatchTs},
		{"window boundary", testBatchTs + 2*resolution, 0},
		{"marker ahead of now", testBatchTs - 1, 0},
	}
	for _, tc := range cases {
		ts, err := state.ObtainRecordTimestamp(tc.nowMs)
		if err != nil || ts != tc.want {
			t.Fatalf("%s: ts=%d err=%v, want %d", tc.name, ts, err, tc.want)
		}
	}
}

func TestSetRetentionPeriod(t *testing.T) {
	state := newTestState(t)
	configureTestState(t, state)
	if err := state.SetRetentionPeriod(0); err == nil {
		t.Fatalf("zero period accepted")
	}
	if err := state.SetRetentionPeriod(60_000_000); err != nil {
		t.Fatalf("set period: %v", err)
	}
	period, err := state.RetentionPeriodMs()
	if err != nil || period != 60_000_000 {
		t.Fatalf("period = %d, %v", period, err)
	}
}

func TestAssetIdentity(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	if SymbolAsset("USD").Equal(AddressAsset(addr)) {
		t.Fatalf("cross-kind assets compared equal")
	}
	if !SymbolAsset(" USD ").Equal(SymbolAsset("USD")) {
		t.Fatalf("symbol whitespace not trimmed")
	}
	if SymbolAsset("USD").String() != "USD" {
		t.Fatalf("symbol String = %q", SymbolAsset("USD").String())
	}
	if AddressAsset(addr).String() != addr.Hex() {
		t.Fatalf("address String = %q", AddressAsset(addr).String())
	}
}
