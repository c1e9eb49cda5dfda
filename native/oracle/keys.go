package oracle

import "github.com/holiman/uint256"

// Record keys pack (timestamp, asset slot) into a single 128-bit value: the
// millisecond timestamp occupies bits 64-127 and the asset slot bits 0-7.
// Yield-rate records set bit 8, which the slot can never touch, so the two
// record families share the keyspace without collisions.

// RecordKey is the big-endian serialisation of a packed 128-bit record key.
type RecordKey [16]byte

const yieldRecordFlag uint64 = 1 << 8

func packRecordKey(timestamp uint64, low uint64) RecordKey {
	v := new(uint256.Int).Lsh(uint256.NewInt(timestamp), 64)
	v.Or(v, uint256.NewInt(low))
	full := v.Bytes32()
	var key RecordKey
	copy(key[:], full[16:])
	return key
}

// priceRecordKey encodes the key for a composited price record.
func priceRecordKey(timestamp uint64, slot uint8) RecordKey {
	return packRecordKey(timestamp, uint64(slot))
}

// yieldRecordKey encodes the key for the yield-rate record backing the same
// (timestamp, slot) pair.
func yieldRecordKey(timestamp uint64, slot uint8) RecordKey {
	return packRecordKey(timestamp, uint64(slot)|yieldRecordFlag)
}

// unpackRecordKey reverses packRecordKey.
func unpackRecordKey(key RecordKey) (timestamp uint64, low uint64) {
	v := new(uint256.Int).SetBytes(key[:])
	low = v.Uint64()
	timestamp = new(uint256.Int).Rsh(v, 64).Uint64()
	return timestamp, low
}

// Bytes returns the key in store form.
func (k RecordKey) Bytes() []byte {
	return k[:]
}
