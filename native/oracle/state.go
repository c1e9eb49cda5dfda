package oracle

import (
	"fmt"
	"strings"
)

// Instance storage keys. These values are written once at configuration time
// (the retention period additionally via SetRetentionPeriod) and are read-only
// from the update and query paths.
var (
	adminKey         = []byte("oracle/admin")
	lastTimestampKey = []byte("oracle/last_timestamp")
	retentionKey     = []byte("oracle/period")
	assetsKey        = []byte("oracle/assets")
	baseAssetKey     = []byte("oracle/base_asset")
	decimalsKey      = []byte("oracle/decimals")
	resolutionKey    = []byte("oracle/resolution")
	fxSymbolsKey     = []byte("oracle/fxs")
	fxRegistryKey    = []byte("oracle/fx_registry")
	fxOracleKey      = []byte("oracle/fx_oracle_address")
	maxDeviationKey  = []byte("oracle/max_yield_deviation")
	assetIndexPrefix = []byte("oracle/asset_index/")
	fxIndexPrefix    = []byte("oracle/fx_index/")
)

// registrySlots caps the registry at 255 assets; slots are single bytes, so
// the highest assigned slot is 254.
const registrySlots = 255

// ConfigData carries the one-shot deployment configuration.
type ConfigData struct {
	// Admin identifies the principal allowed to mutate state through the
	// entry surface. The core only stores it; enforcement happens upstream.
	Admin string
	// Period is the record retention period in milliseconds.
	Period uint64
	// BaseAsset anchors cross-rate semantics for consumers.
	BaseAsset Asset
	// Decimals is the fixed-point precision shared by all stored values.
	Decimals uint32
	// Resolution is the time bucket width in milliseconds.
	Resolution uint32
	// FxOracleAddress locates the external FX oracle. Informational for the
	// core; the resolver receives a live client at construction.
	FxOracleAddress string
	// MaxYieldDeviationPercent bounds upward yield-rate movement per update.
	MaxYieldDeviationPercent uint32
}

// State exposes the configuration and registry slice of the ledger store.
type State struct {
	store Storage
}

// NewState binds state accessors to the given storage backend.
func NewState(store Storage) *State {
	return &State{store: store}
}

// IsInitialized reports whether Configure has run.
func (s *State) IsInitialized() (bool, error) {
	var admin string
	return s.store.KVGet(adminKey, &admin)
}

// Configure performs one-shot initialisation. A second call fails with
// ErrAlreadyInitialized regardless of payload.
func (s *State) Configure(cfg ConfigData) error {
	initialized, err := s.IsInitialized()
	if err != nil {
		return err
	}
	if initialized {
		return ErrAlreadyInitialized
	}
	admin := strings.TrimSpace(cfg.Admin)
	if admin == "" {
		return fmt.Errorf("oracle: admin required")
	}
	if cfg.Resolution == 0 {
		return fmt.Errorf("oracle: resolution must be positive")
	}
	if cfg.Period == 0 {
		return fmt.Errorf("oracle: retention period must be positive")
	}
	if _, err := pow10(cfg.Decimals); err != nil {
		return fmt.Errorf("oracle: decimals out of range: %w", err)
	}
	if err := s.store.KVPut(adminKey, admin); err != nil {
		return err
	}
	if err := s.store.KVPut(retentionKey, cfg.Period); err != nil {
		return err
	}
	if err := s.store.KVPut(baseAssetKey, cfg.BaseAsset.toStored()); err != nil {
		return err
	}
	if err := s.store.KVPut(decimalsKey, cfg.Decimals); err != nil {
		return err
	}
	if err := s.store.KVPut(resolutionKey, cfg.Resolution); err != nil {
		return err
	}
	if err := s.store.KVPut(fxOracleKey, strings.TrimSpace(cfg.FxOracleAddress)); err != nil {
		return err
	}
	return s.store.KVPut(maxDeviationKey, cfg.MaxYieldDeviationPercent)
}

// Admin returns the configured admin principal.
func (s *State) Admin() (string, bool, error) {
	var admin string
	ok, err := s.store.KVGet(adminKey, &admin)
	return admin, ok, err
}

// BaseAsset returns the configured base asset.
func (s *State) BaseAsset() (Asset, error) {
	var stored storedAsset
	ok, err := s.store.KVGet(baseAssetKey, &stored)
	if err != nil {
		return Asset{}, err
	}
	if !ok {
		return Asset{}, ErrNotInitialized
	}
	return stored.toAsset(), nil
}

// Decimals returns the fixed-point precision.
func (s *State) Decimals() (uint32, error) {
	var decimals uint32
	ok, err := s.store.KVGet(decimalsKey, &decimals)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotInitialized
	}
	return decimals, nil
}

// ResolutionMs returns the time bucket width in milliseconds.
func (s *State) ResolutionMs() (uint32, error) {
	var resolution uint32
	ok, err := s.store.KVGet(resolutionKey, &resolution)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotInitialized
	}
	return resolution, nil
}

// RetentionPeriodMs returns the record retention period in milliseconds.
func (s *State) RetentionPeriodMs() (uint64, error) {
	var period uint64
	if _, err := s.store.KVGet(retentionKey, &period); err != nil {
		return 0, err
	}
	return period, nil
}

// SetRetentionPeriod replaces the retention period.
func (s *State) SetRetentionPeriod(periodMs uint64) error {
	if periodMs == 0 {
		return fmt.Errorf("oracle: retention period must be positive")
	}
	return s.store.KVPut(retentionKey, periodMs)
}

// MaxYieldDeviation returns the configured deviation bound in whole percent.
func (s *State) MaxYieldDeviation() (uint32, error) {
	var percent uint32
	if _, err := s.store.KVGet(maxDeviationKey, &percent); err != nil {
		return 0, err
	}
	return percent, nil
}

// FxOracleAddress returns the configured oracle locator, if any.
func (s *State) FxOracleAddress() (string, error) {
	var address string
	if _, err := s.store.KVGet(fxOracleKey, &address); err != nil {
		return "", err
	}
	return address, nil
}

// LastTimestamp returns the raw last-accepted marker in milliseconds.
func (s *State) LastTimestamp() (uint64, error) {
	var timestamp uint64
	if _, err := s.store.KVGet(lastTimestampKey, &timestamp); err != nil {
		return 0, err
	}
	return timestamp, nil
}

// SetLastTimestamp advances the last-accepted marker.
func (s *State) SetLastTimestamp(timestampMs uint64) error {
	return s.store.KVPut(lastTimestampKey, timestampMs)
}

// ObtainRecordTimestamp returns the last-accepted marker only while it can
// serve as the "last" reference point: non-zero, not ahead of the chain time,
// and less than two resolution windows behind it. Anything else reads as no
// usable history, which also forces cold-start yield validation.
func (s *State) ObtainRecordTimestamp(nowMs uint64) (uint64, error) {
	last, err := s.LastTimestamp()
	if err != nil {
		return 0, err
	}
	resolution, err := s.ResolutionMs()
	if err != nil {
		return 0, err
	}
	if last == 0 || last > nowMs || nowMs-last >= 2*uint64(resolution) {
		return 0, nil
	}
	return last, nil
}

// Assets lists registered assets in slot order.
func (s *State) Assets() ([]Asset, error) {
	var stored []storedAsset
	if _, err := s.store.KVGet(assetsKey, &stored); err != nil {
		return nil, err
	}
	assets := make([]Asset, len(stored))
	for i, entry := range stored {
		assets[i] = entry.toAsset()
	}
	return assets, nil
}

// AssetFxSymbols lists the FX symbol paired with each asset slot.
func (s *State) AssetFxSymbols() ([]string, error) {
	var fxs []string
	if _, err := s.store.KVGet(fxSymbolsKey, &fxs); err != nil {
		return nil, err
	}
	return fxs, nil
}

// AssetIndex resolves an asset to its dense slot.
func (s *State) AssetIndex(asset Asset) (uint8, bool, error) {
	var index uint32
	ok, err := s.store.KVGet(asset.indexKey(), &index)
	if err != nil || !ok {
		return 0, false, err
	}
	return uint8(index), true, nil
}

// FxIndex resolves an FX symbol to its dense slot.
func (s *State) FxIndex(symbol string) (uint8, bool, error) {
	var index uint32
	ok, err := s.store.KVGet(fxIndexKey(symbol), &index)
	if err != nil || !ok {
		return 0, false, err
	}
	return uint8(index), true, nil
}

// AddAssets registers new assets with their paired FX symbols. The two slices
// are parallel; symbols may repeat across assets and register once. Duplicate
// assets, malformed pairs, and exhausted slot space all reject the whole batch
// before anything is written.
func (s *State) AddAssets(assets []Asset, fxs []string) error {
	if len(assets) == 0 || len(assets) != len(fxs) {
		return ErrFxArrayLengthMismatch
	}
	existing, err := s.Assets()
	if err != nil {
		return err
	}
	if len(existing)+len(assets) > registrySlots {
		return ErrAssetLimitExceeded
	}
	pairedFxs, err := s.AssetFxSymbols()
	if err != nil {
		return err
	}
	var fxRegistry []string
	if _, err := s.store.KVGet(fxRegistryKey, &fxRegistry); err != nil {
		return err
	}
	registered := make(map[string]struct{}, len(fxRegistry))
	for _, symbol := range fxRegistry {
		registered[symbol] = struct{}{}
	}

	type slotAssignment struct {
		asset  Asset
		symbol string
		slot   uint32
	}
	assignments := make([]slotAssignment, 0, len(assets))
	newFxs := make([]string, 0, len(fxs))
	seen := make(map[string]struct{}, len(assets))
	for i, asset := range assets {
		symbol := strings.ToUpper(strings.TrimSpace(fxs[i]))
		if symbol == "" {
			return ErrFxArrayLengthMismatch
		}
		if _, dup := seen[string(asset.indexKey())]; dup {
			return ErrAssetAlreadyExists
		}
		seen[string(asset.indexKey())] = struct{}{}
		if _, ok, err := s.AssetIndex(asset); err != nil {
			return err
		} else if ok {
			return ErrAssetAlreadyExists
		}
		if _, ok := registered[symbol]; !ok {
			if len(registered) >= registrySlots {
				return ErrFxLimitExceeded
			}
			registered[symbol] = struct{}{}
			newFxs = append(newFxs, symbol)
		}
		assignments = append(assignments, slotAssignment{
			asset:  asset,
			symbol: symbol,
			slot:   uint32(len(existing) + i),
		})
	}

	stored := make([]storedAsset, 0, len(existing)+len(assignments))
	for _, asset := range existing {
		stored = append(stored, asset.toStored())
	}
	for _, assignment := range assignments {
		if err := s.store.KVPut(assignment.asset.indexKey(), assignment.slot); err != nil {
			return err
		}
		stored = append(stored, assignment.asset.toStored())
		pairedFxs = append(pairedFxs, assignment.symbol)
	}
	for _, symbol := range newFxs {
		fxRegistry = append(fxRegistry, symbol)
		if err := s.store.KVPut(fxIndexKey(symbol), uint32(len(fxRegistry)-1)); err != nil {
			return err
		}
	}
	if err := s.store.KVPut(assetsKey, stored); err != nil {
		return err
	}
	if err := s.store.KVPut(fxSymbolsKey, pairedFxs); err != nil {
		return err
	}
	return s.store.KVPut(fxRegistryKey, fxRegistry)
}

func fxIndexKey(symbol string) []byte {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	return append(append([]byte{}, fxIndexPrefix...), []byte(normalized)...)
}
