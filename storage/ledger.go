package storage

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// HeightSource supplies the current ledger height against which record TTLs
// are measured.
type HeightSource func() uint64

// ledgerCloseSeconds approximates the host-chain ledger close interval used
// when deriving heights from wall-clock time.
const ledgerCloseSeconds = 5

// minRecordTTL is the floor applied to every temporary record, mirroring the
// host chain's minimum lifetime for temporary entries.
const minRecordTTL = 16

var (
	instancePrefix = []byte("i/")
	tempPrefix     = []byte("t/")
)

// TimeHeights derives ledger heights from wall-clock time, for deployments
// without a real chain underneath.
func TimeHeights(clock func() time.Time) HeightSource {
	if clock == nil {
		clock = time.Now
	}
	return func() uint64 {
		now := clock().Unix()
		if now < 0 {
			return 0
		}
		return uint64(now) / ledgerCloseSeconds
	}
}

// LedgerStore layers the oracle's two keyspaces over a Database: permanent
// instance values and temporary records that expire by ledger height. Expired
// records read as absent, identically to records that never existed.
type LedgerStore struct {
	db     Database
	height HeightSource
}

type tempRecord struct {
	Expiry uint64
	Value  []byte
}

// NewLedgerStore binds a store to a database and a height source.
func NewLedgerStore(db Database, height HeightSource) *LedgerStore {
	if height == nil {
		height = TimeHeights(nil)
	}
	return &LedgerStore{db: db, height: height}
}

// KVGet decodes the permanent value under key into out.
func (s *LedgerStore) KVGet(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(prefixed(instancePrefix, key))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVPut stores a permanent value under key.
func (s *LedgerStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(prefixed(instancePrefix, key), encoded)
}

// TempGet returns an unexpired temporary record's raw bytes.
func (s *LedgerStore) TempGet(key []byte) ([]byte, bool, error) {
	record, ok, err := s.loadTemp(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Value, true, nil
}

// TempPut stores a temporary record expiring after the given ledgers. The TTL
// floor applies even when the caller asks for less.
func (s *LedgerStore) TempPut(key []byte, value []byte, ledgers uint32) error {
	ttl := uint64(ledgers)
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	record := tempRecord{
		Expiry: s.height() + ttl,
		Value:  append([]byte(nil), value...),
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return s.db.Put(prefixed(tempPrefix, key), encoded)
}

// TempExtendTTL pushes an existing record's expiry out to the given ledgers
// from the current height. Missing or already-expired records are untouched;
// an extension never shortens a longer remaining lifetime.
func (s *LedgerStore) TempExtendTTL(key []byte, ledgers uint32) error {
	record, ok, err := s.loadTemp(key)
	if err != nil || !ok {
		return err
	}
	target := s.height() + uint64(ledgers)
	if target <= record.Expiry {
		return nil
	}
	record.Expiry = target
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return s.db.Put(prefixed(tempPrefix, key), encoded)
}

func (s *LedgerStore) loadTemp(key []byte) (tempRecord, bool, error) {
	storeKey := prefixed(tempPrefix, key)
	raw, err := s.db.Get(storeKey)
	if errors.Is(err, ErrKeyNotFound) {
		return tempRecord{}, false, nil
	}
	if err != nil {
		return tempRecord{}, false, err
	}
	var record tempRecord
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return tempRecord{}, false, err
	}
	if s.height() > record.Expiry {
		// Lazy reclamation; the record is already unreachable either way.
		_ = s.db.Delete(storeKey)
		return tempRecord{}, false, nil
	}
	return record, true, nil
}

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}
