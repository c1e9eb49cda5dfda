package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// oracleVersion is the major version reported to consumers.
const oracleVersion uint32 = 1

// ledgerIntervalMs approximates the host-chain ledger close time, used to
// translate the retention period into a record TTL.
const ledgerIntervalMs = 5000

// Engine drives the update path: yield-rate validation, FX resolution, price
// composition, and the temporal queries layered on the resulting records.
// Execution is transactional per call; a batch either commits every composited
// price or nothing.
type Engine struct {
	state  *State
	store  Storage
	fx     FxOracle
	clock  func() time.Time
	logger *slog.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithClock overrides the chain time source for deterministic testing.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs the oracle engine. fx may be nil when no external
// oracle is reachable; updates priced in the base currency still work.
func NewEngine(state *State, store Storage, fx FxOracle, opts ...EngineOption) (*Engine, error) {
	if state == nil {
		return nil, fmt.Errorf("oracle: state required")
	}
	if store == nil {
		return nil, fmt.Errorf("oracle: storage required")
	}
	engine := &Engine{
		state:  state,
		store:  store,
		fx:     fx,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// State exposes the configuration accessors backing this engine.
func (e *Engine) State() *State {
	return e.state
}

// Version reports the oracle major version.
func (e *Engine) Version() uint32 {
	return oracleVersion
}

func (e *Engine) nowMs() uint64 {
	now := e.clock().UnixMilli()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

type stagedRecord struct {
	key   RecordKey
	value *big.Int
}

// SetPrice processes a batch of yield-rate updates, one entry per registered
// asset slot. Zero entries are skipped. Every entry is validated and priced
// before anything is written, so a failure anywhere rejects the whole batch.
func (e *Engine) SetPrice(ctx context.Context, updates []*big.Int, timestampMs uint64) error {
	initialized, err := e.state.IsInitialized()
	if err != nil {
		return err
	}
	if !initialized {
		return ErrNotInitialized
	}
	assets, err := e.state.Assets()
	if err != nil {
		return err
	}
	fxs, err := e.state.AssetFxSymbols()
	if err != nil {
		return err
	}
	if len(updates) == 0 || len(updates) != len(assets) || len(updates) != len(fxs) {
		return ErrInvalidUpdateLength
	}
	decimals, err := e.state.Decimals()
	if err != nil {
		return err
	}
	resolution, err := e.state.ResolutionMs()
	if err != nil {
		return err
	}
	nowMs := e.nowMs()
	if timestampMs == 0 || timestampMs%uint64(resolution) != 0 || timestampMs > nowMs {
		return ErrInvalidTimestamp
	}
	maxDeviation, err := e.state.MaxYieldDeviation()
	if err != nil {
		return err
	}
	referenceTs, err := e.state.ObtainRecordTimestamp(nowMs)
	if err != nil {
		return err
	}
	period, err := e.state.RetentionPeriodMs()
	if err != nil {
		return err
	}
	ledgers := retentionLedgers(period)

	staged := make([]stagedRecord, 0, 2*len(updates))
	for i, rate := range updates {
		if rate == nil || rate.Sign() == 0 {
			continue
		}
		slot := uint8(i)
		if err := e.validateYieldRate(slot, rate, referenceTs, decimals, maxDeviation); err != nil {
			e.logger.Warn("yield rate rejected",
				"asset", assets[i].String(), "timestamp_ms", timestampMs, "err", err)
			return err
		}
		fxPrice, err := e.resolveFxPrice(ctx, fxs[i], timestampMs, decimals, resolution)
		if err != nil {
			return err
		}
		price, err := compositePrice(fxPrice, rate, decimals)
		if err != nil {
			return err
		}
		staged = append(staged,
			stagedRecord{key: yieldRecordKey(timestampMs, slot), value: rate},
			stagedRecord{key: priceRecordKey(timestampMs, slot), value: price},
		)
	}
	for _, record := range staged {
		if err := e.putRecord(record.key, record.value, ledgers); err != nil {
			return err
		}
	}
	return e.state.SetLastTimestamp(timestampMs)
}

// validateYieldRate enforces the floor and the sequential monotonicity and
// deviation bounds against the previous accepted rate. The resolver deciding
// whether a previous rate exists is the continuity check: after a long outage
// the asset re-enters cold start and any floored rate is accepted.
func (e *Engine) validateYieldRate(slot uint8, rate *big.Int, referenceTs uint64, decimals, maxDeviation uint32) error {
	minRate, err := pow10(decimals)
	if err != nil {
		return err
	}
	if !fitsInt128(rate) {
		return ErrIntegerOverflow
	}
	if rate.Cmp(minRate) < 0 {
		return ErrInvalidYieldRate
	}
	if referenceTs == 0 {
		return nil
	}
	prev, ok, err := e.getRecord(yieldRecordKey(referenceTs, slot))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if rate.Cmp(prev) < 0 {
		// The interest-accrual source can dip below its previous reading by
		// rounding noise; anything past one percent is a feed error. The
		// tolerance is deliberately fixed, unlike the deviation bound.
		drop, err := checkedSub128(prev, rate)
		if err != nil {
			return err
		}
		dropScaled, err := checkedMul128(drop, hundred)
		if err != nil {
			return err
		}
		dropPct, err := checkedDiv128(dropScaled, prev)
		if err != nil {
			return err
		}
		if dropPct.Cmp(big.NewInt(1)) > 0 {
			return ErrYieldRateDecreased
		}
	}
	change, err := checkedSub128(rate, prev)
	if err != nil {
		return err
	}
	changeScaled, err := checkedMul128(change, hundred)
	if err != nil {
		return err
	}
	changePct, err := checkedDiv128(changeScaled, prev)
	if err != nil {
		return err
	}
	if changePct.Cmp(new(big.Int).SetUint64(uint64(maxDeviation))) > 0 {
		return ErrYieldRateDeviationExceeded
	}
	return nil
}

// compositePrice combines a validated yield rate with an FX rate. Unlike the
// cross-rate division this multiplication stays inside the 128-bit envelope.
func compositePrice(fxPrice, yieldRate *big.Int, decimals uint32) (*big.Int, error) {
	intermediate, err := checkedMul128(fxPrice, yieldRate)
	if err != nil {
		return nil, err
	}
	scale, err := pow10(decimals)
	if err != nil {
		return nil, err
	}
	return checkedDiv128(intermediate, scale)
}

// retentionLedgers converts the retention period into a record TTL.
func retentionLedgers(periodMs uint64) uint32 {
	ledgers := periodMs / ledgerIntervalMs
	if ledgers > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(ledgers)
}

func (e *Engine) putRecord(key RecordKey, value *big.Int, ledgers uint32) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return e.store.TempPut(key.Bytes(), encoded, ledgers)
}

func (e *Engine) getRecord(key RecordKey) (*big.Int, bool, error) {
	raw, ok, err := e.store.TempGet(key.Bytes())
	if err != nil || !ok {
		return nil, false, err
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(raw, value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}
