// Package journal persists committed ledger events in an append-only,
// hash-chained log. Each entry's digest covers the previous digest, so any
// edit or deletion of a stored row breaks verification from that row onward.
package journal

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"sbtlend/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MaxPageSize bounds List results.
	MaxPageSize = 500
)

// ErrChainBroken reports a stored entry whose digest does not match its
// contents or predecessor.
var ErrChainBroken = errors.New("journal: digest chain broken")

// Entry is a persisted event.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64    `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string    `gorm:"index;size:64;not null" json:"type"`
	Attributes string    `gorm:"type:text;not null" json:"-"`
	PrevDigest string    `gorm:"size:64" json:"prevDigest"`
	Digest     string    `gorm:"size:64;not null" json:"digest"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name.
func (Entry) TableName() string { return "ledger_events" }

// Event decodes the stored attributes.
func (e Entry) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("journal: decode entry %d: %w", e.Seq, err)
	}
	return &types.Event{Type: e.Type, Attributes: attrs}, nil
}

// Config selects the journal backend.
type Config struct {
	Driver string
	DSN    string
}

// Journal appends events and serves them back in commit order.
type Journal struct {
	db *gorm.DB

	mu         sync.Mutex
	lastSeq    uint64
	lastDigest string
}

// Open connects to the configured backend and migrates the schema.
func Open(cfg Config) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db}
	var tail Entry
	err := db.Order("seq DESC").Limit(1).Take(&tail).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("journal: load tail: %w", err)
	default:
		j.lastSeq = tail.Seq
		j.lastDigest = tail.Digest
	}
	return j, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Publish appends evs in order within a single database transaction.
func (j *Journal) Publish(ctx context.Context, evs []*types.Event) error {
	if len(evs) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	seq, prev := j.lastSeq, j.lastDigest
	entries := make([]Entry, 0, len(evs))
	now := time.Now().UTC()
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		attrs, err := json.Marshal(ev.Attributes)
		if err != nil {
			return fmt.Errorf("journal: encode %s: %w", ev.Type, err)
		}
		seq++
		digest := chainDigest(prev, seq, ev.Type, attrs)
		entries = append(entries, Entry{
			ID:         uuid.New(),
			Seq:        seq,
			Type:       ev.Type,
			Attributes: string(attrs),
			PrevDigest: prev,
			Digest:     digest,
			CreatedAt:  now,
		})
		prev = digest
	}
	if len(entries) == 0 {
		return nil
	}
	if err := j.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	j.lastSeq, j.lastDigest = seq, prev
	return nil
}

// List returns up to limit entries with a sequence number above after.
func (j *Journal) List(ctx context.Context, after uint64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	var entries []Entry
	err := j.db.WithContext(ctx).
		Where("seq > ?", after).
		Order("seq ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return entries, nil
}

// VerifyResult summarises a chain verification pass.
type VerifyResult struct {
	Entries    uint64 `json:"entries"`
	HeadDigest string `json:"headDigest"`
}

// Verify walks the whole journal and recomputes every digest.
func (j *Journal) Verify(ctx context.Context) (VerifyResult, error) {
	var (
		result VerifyResult
		after  uint64
		prev   string
	)
	for {
		page, err := j.List(ctx, after, MaxPageSize)
		if err != nil {
			return result, err
		}
		for _, entry := range page {
			if entry.Seq != after+1 {
				return result, fmt.Errorf("%w: gap before seq %d", ErrChainBroken, entry.Seq)
			}
			if entry.PrevDigest != prev {
				return result, fmt.Errorf("%w: seq %d does not link to its predecessor", ErrChainBroken, entry.Seq)
			}
			if chainDigest(prev, entry.Seq, entry.Type, []byte(entry.Attributes)) != entry.Digest {
				return result, fmt.Errorf("%w: seq %d digest mismatch", ErrChainBroken, entry.Seq)
			}
			prev = entry.Digest
			after = entry.Seq
			result.Entries++
		}
		if len(page) < MaxPageSize {
			break
		}
	}
	result.HeadDigest = prev
	return result, nil
}

func chainDigest(prev string, seq uint64, eventType string, attrs []byte) string {
	h := blake3.New(32, nil)
	h.Write([]byte(prev))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(seq, 10)))
	h.Write([]byte{0})
	h.Write([]byte(eventType))
	h.Write([]byte{0})
	h.Write(attrs)
	return hex.EncodeToString(h.Sum(nil))
}
