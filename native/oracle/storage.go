package oracle

// Storage abstracts the ledger-backed persistence the oracle needs. Instance
// values live for the lifetime of the deployment; temporary records carry a
// time-to-live measured in ledgers and read as absent once it lapses.
type Storage interface {
	// KVGet decodes the permanent value under key into out, reporting presence.
	KVGet(key []byte, out interface{}) (bool, error)
	// KVPut stores a permanent value under key.
	KVPut(key []byte, value interface{}) error
	// TempGet returns the raw bytes of an unexpired temporary record.
	TempGet(key []byte) ([]byte, bool, error)
	// TempPut stores a temporary record that expires after the given ledgers.
	TempPut(key []byte, value []byte, ledgers uint32) error
}
