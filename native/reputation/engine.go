package reputation

import (
	"errors"
	"strings"
	"time"

	"sbtlend/core/events"
	"sbtlend/crypto"
	nativecommon "sbtlend/native/common"
)

var (
	// ErrAlreadyMinted marks a second mint for the same identity.
	ErrAlreadyMinted = errors.New("reputation: record already minted")
	// ErrInvalidScore marks zero scores, score overflow and mismatched batch
	// inputs.
	ErrInvalidScore = errors.New("reputation: invalid score")
	// ErrTokenNotFound marks updates addressed to an unminted identity.
	ErrTokenNotFound = errors.New("reputation: token not found")
)

// Engine implements the soulbound reputation registry state transitions. It
// validates every precondition before its first write; callers that need
// all-or-nothing behaviour across several calls stage the store and commit once.
type Engine struct {
	store   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() uint64
}

// NewEngine constructs an engine backed by the provided storage backend.
func NewEngine(store engineState) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter routes registry events to emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the wall clock. Primarily leveraged in tests to provide
// deterministic timestamps.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

// Initialize creates the registry administered by admin.
func (e *Engine) Initialize(admin crypto.Address, collection string) error {
	if admin.IsZero() {
		return nativecommon.ErrInvalidAddress
	}
	reg, err := e.loadRegistry()
	if err != nil {
		return err
	}
	if reg != nil {
		return nativecommon.ErrAlreadyInitialized
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultCollection
	}
	raw := admin.Raw()
	return e.store.KVPut(registryKey, &storedRegistry{Collection: collection, Admin: raw})
}

// Info returns the registry metadata.
func (e *Engine) Info() (*Registry, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, nativecommon.ErrNotInitialized
	}
	return &Registry{
		Collection:  reg.Collection,
		Admin:       crypto.NewAddress(crypto.AccountPrefix, reg.Admin[:]),
		TotalMinted: reg.TotalMinted,
	}, nil
}

func (e *Engine) authorize(caller crypto.Address) (*storedRegistry, error) {
	if err := nativecommon.Guard(e.pauses, nativecommon.ModuleReputation); err != nil {
		return nil, err
	}
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, nativecommon.ErrNotInitialized
	}
	if caller.Raw() != reg.Admin {
		return nil, nativecommon.ErrNotAuthorized
	}
	return reg, nil
}

// Mint issues the soulbound record for user with the supplied starting score.
func (e *Engine) Mint(admin, user crypto.Address, initialScore uint64) (*Record, error) {
	reg, err := e.authorize(admin)
	if err != nil {
		return nil, err
	}
	if user.IsZero() {
		return nil, nativecommon.ErrInvalidAddress
	}
	if initialScore == 0 {
		return nil, ErrInvalidScore
	}
	existing, err := e.loadRecord(user)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyMinted
	}
	total, err := nativecommon.CheckedAdd(reg.TotalMinted, 1)
	if err != nil {
		return nil, err
	}

	now := e.now()
	rec := &storedRecord{
		Owner:         user.Raw(),
		TokenID:       ComputeTokenID(reg.Collection, user),
		Score:         initialScore,
		MintTimestamp: now,
		LastUpdated:   now,
	}
	if err := e.putRecord(rec); err != nil {
		return nil, err
	}
	reg.TotalMinted = total
	if err := e.store.KVPut(registryKey, reg); err != nil {
		return nil, err
	}

	minted := rec.toRecord()
	e.emitter.Emit(events.ReputationMinted{
		Owner:     minted.Owner,
		TokenID:   minted.TokenID,
		Score:     minted.Score,
		Level:     minted.Level.String(),
		Timestamp: now,
	})
	return minted, nil
}

// Update overwrites the score of an existing record.
func (e *Engine) Update(admin, user crypto.Address, newScore uint64) (*Record, error) {
	if _, err := e.authorize(admin); err != nil {
		return nil, err
	}
	rec, err := e.checkUpdate(user, newScore)
	if err != nil {
		return nil, err
	}
	return e.applyUpdate(rec, newScore)
}

// Increase raises the score of an existing record by points. Zero points
// still count as an update.
func (e *Engine) Increase(admin, user crypto.Address, points uint64) (*Record, error) {
	if _, err := e.authorize(admin); err != nil {
		return nil, err
	}
	rec, err := e.existingRecord(user)
	if err != nil {
		return nil, err
	}
	next, err := nativecommon.CheckedAdd(rec.Score, points)
	if err != nil {
		return nil, ErrInvalidScore
	}
	return e.applyUpdate(rec, next)
}

// Decrease lowers the score of an existing record by points. The score never
// drops below one.
func (e *Engine) Decrease(admin, user crypto.Address, points uint64) (*Record, error) {
	if _, err := e.authorize(admin); err != nil {
		return nil, err
	}
	rec, err := e.existingRecord(user)
	if err != nil {
		return nil, err
	}
	next := nativecommon.SaturatingSub(rec.Score, points)
	if next < BronzeThreshold {
		next = BronzeThreshold
	}
	return e.applyUpdate(rec, next)
}

// BatchUpdate applies Update for every (user, score) pair in order. The whole
// batch is validated up front so the first failure aborts it before anything
// is written.
func (e *Engine) BatchUpdate(admin crypto.Address, users []crypto.Address, scores []uint64) ([]*Record, error) {
	if _, err := e.authorize(admin); err != nil {
		return nil, err
	}
	if len(users) != len(scores) {
		return nil, ErrInvalidScore
	}
	for i, user := range users {
		if _, err := e.checkUpdate(user, scores[i]); err != nil {
			return nil, err
		}
	}
	updated := make([]*Record, 0, len(users))
	for i, user := range users {
		// Reload so repeated identities observe the earlier entries.
		rec, err := e.loadRecord(user)
		if err != nil {
			return nil, err
		}
		out, err := e.applyUpdate(rec, scores[i])
		if err != nil {
			return nil, err
		}
		updated = append(updated, out)
	}
	return updated, nil
}

func (e *Engine) checkUpdate(user crypto.Address, newScore uint64) (*storedRecord, error) {
	if newScore == 0 {
		return nil, ErrInvalidScore
	}
	return e.existingRecord(user)
}

func (e *Engine) existingRecord(user crypto.Address) (*storedRecord, error) {
	rec, err := e.loadRecord(user)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTokenNotFound
	}
	return rec, nil
}

func (e *Engine) applyUpdate(rec *storedRecord, newScore uint64) (*Record, error) {
	count, err := nativecommon.CheckedAdd(rec.TransactionCount, 1)
	if err != nil {
		return nil, err
	}
	oldScore := rec.Score
	rec.Score = newScore
	rec.LastUpdated = e.now()
	rec.TransactionCount = count
	if err := e.putRecord(rec); err != nil {
		return nil, err
	}
	updated := rec.toRecord()
	e.emitter.Emit(events.ReputationUpdated{
		Owner:     updated.Owner,
		TokenID:   updated.TokenID,
		OldScore:  oldScore,
		NewScore:  newScore,
		OldLevel:  TierForScore(oldScore).String(),
		NewLevel:  updated.Level.String(),
		Timestamp: updated.LastUpdated,
	})
	return updated, nil
}

// Get returns the record bound to user, or nil when none was minted.
func (e *Engine) Get(user crypto.Address) (*Record, error) {
	rec, err := e.loadRecord(user)
	if err != nil {
		return nil, err
	}
	return rec.toRecord(), nil
}

// Summary returns the public read model for user. Unregistered identities
// yield zero values.
func (e *Engine) Summary(user crypto.Address) (Summary, error) {
	rec, err := e.Get(user)
	if err != nil {
		return Summary{}, err
	}
	if rec == nil {
		return Summary{Level: TierNone.String()}, nil
	}
	return Summary{
		Score:            rec.Score,
		Level:            rec.Level.String(),
		MintTimestamp:    rec.MintTimestamp,
		TransactionCount: rec.TransactionCount,
	}, nil
}

// Has reports whether user holds a record.
func (e *Engine) Has(user crypto.Address) (bool, error) {
	rec, err := e.loadRecord(user)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Multiplier returns the rate multiplier for user; unregistered identities
// get the base multiplier.
func (e *Engine) Multiplier(user crypto.Address) (uint64, error) {
	rec, err := e.loadRecord(user)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return MultiplierBase, nil
	}
	return TierForScore(rec.Score).Multiplier(), nil
}

// CanPerformAction reports whether user holds a record scoring at least
// required.
func (e *Engine) CanPerformAction(user crypto.Address, required uint64) (bool, error) {
	rec, err := e.loadRecord(user)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Score >= required, nil
}

// Thresholds returns the tier thresholds.
func (e *Engine) Thresholds() Thresholds {
	return DefaultThresholds()
}
