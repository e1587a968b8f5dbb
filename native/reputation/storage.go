package reputation

import (
	"errors"

	"sbtlend/crypto"
)

// engineState abstracts the subset of state manager functionality required by the
// reputation registry.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	registryKey  = []byte("reputation/registry")
	recordPrefix = []byte("reputation/record/")
)

func recordKey(owner crypto.Address) []byte {
	raw := owner.Raw()
	key := make([]byte, 0, len(recordPrefix)+len(raw))
	key = append(key, recordPrefix...)
	return append(key, raw[:]...)
}

type storedRegistry struct {
	Collection  string
	Admin       [20]byte
	TotalMinted uint64
}

type storedRecord struct {
	Owner            [20]byte
	TokenID          [32]byte
	Score            uint64
	MintTimestamp    uint64
	LastUpdated      uint64
	TransactionCount uint64
}

var errStorageUnavailable = errors.New("reputation: storage unavailable")

func (e *Engine) loadRegistry() (*storedRegistry, error) {
	if e == nil || e.store == nil {
		return nil, errStorageUnavailable
	}
	var reg storedRegistry
	ok, err := e.store.KVGet(registryKey, &reg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &reg, nil
}

func (e *Engine) loadRecord(owner crypto.Address) (*storedRecord, error) {
	if e == nil || e.store == nil {
		return nil, errStorageUnavailable
	}
	var rec storedRecord
	ok, err := e.store.KVGet(recordKey(owner), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (e *Engine) putRecord(rec *storedRecord) error {
	owner := crypto.NewAddress(crypto.AccountPrefix, rec.Owner[:])
	return e.store.KVPut(recordKey(owner), rec)
}

func (r *storedRecord) toRecord() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Owner:            crypto.NewAddress(crypto.AccountPrefix, r.Owner[:]),
		TokenID:          r.TokenID,
		Score:            r.Score,
		Level:            TierForScore(r.Score),
		MintTimestamp:    r.MintTimestamp,
		LastUpdated:      r.LastUpdated,
		TransactionCount: r.TransactionCount,
	}
}
