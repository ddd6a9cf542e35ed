package edition

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidPageToken is returned by ListEvents for a malformed token.
var ErrInvalidPageToken = errors.New("invalid page token")

// Store provides database operations for the registry state row and its
// event log.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the editions and edition_events tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&EditionRecord{}, &EventRecord{})
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// Get returns the state row, or nil if it has not been created yet.
func (s *Store) Get(ctx context.Context) (*EditionRecord, error) {
	var rec EditionRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", TokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get edition record: %w", err)
	}
	return &rec, nil
}

// EnsureRecord returns the state row, creating an undeployed one for the
// given variant if none exists. Safe to call from several replicas at once.
func (s *Store) EnsureRecord(ctx context.Context, variant string) (*EditionRecord, error) {
	rec := EditionRecord{ID: TokenID}
	err := s.db.WithContext(ctx).
		Where(&EditionRecord{ID: TokenID}).
		Attrs(EditionRecord{Variant: variant}).
		FirstOrCreate(&rec).Error
	if err != nil {
		// Another replica may have inserted the row between our read and
		// insert.
		existing, getErr := s.Get(ctx)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("ensure edition record: %w", err)
	}
	return &rec, nil
}

// Transaction runs fn with a Store bound to a single database transaction.
// Returning an error from fn rolls back every write made through tx.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// getForUpdate re-reads the state row inside a transaction. On databases
// with row locks the row stays locked until the transaction ends, which
// serializes mutations across server replicas.
func (s *Store) getForUpdate(ctx context.Context) (*EditionRecord, error) {
	q := s.db.WithContext(ctx)
	if s.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec EditionRecord
	if err := q.First(&rec, "id = ?", TokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("edition record missing: %w", err)
		}
		return nil, fmt.Errorf("lock edition record: %w", err)
	}
	return &rec, nil
}

// Save writes every column of rec.
func (s *Store) Save(ctx context.Context, rec *EditionRecord) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("save edition record: %w", err)
	}
	return nil
}

// AppendEvent assigns the next sequence number to ev and inserts it.
func (s *Store) AppendEvent(ctx context.Context, ev *EventRecord) error {
	var last uint64
	if err := s.db.WithContext(ctx).Model(&EventRecord{}).
		Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return fmt.Errorf("read last event seq: %w", err)
	}
	ev.Seq = last + 1
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// CountEvents returns the number of events recorded.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&EventRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ListEvents returns events oldest first. The page token is the sequence
// number of the last event of the previous page.
func (s *Store) ListEvents(ctx context.Context, pageSize int, pageToken string) ([]EventRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var after uint64
	if pageToken != "" {
		v, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidPageToken, pageToken)
		}
		after = v
	}

	var records []EventRecord
	if err := s.db.WithContext(ctx).
		Where("seq > ?", after).
		Order("seq ASC").
		Limit(pageSize + 1).
		Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list events: %w", err)
	}

	var next string
	if len(records) > pageSize {
		records = records[:pageSize]
		next = strconv.FormatUint(records[pageSize-1].Seq, 10)
	}
	return records, next, nil
}
