package ha

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
)

// ErrLockTimeout is returned when the migration lock could not be acquired
// in time.
var ErrLockTimeout = errors.New("timed out waiting for migration lock")

// MigrationLocker is the interface for acquiring a lock around database
// migrations to prevent concurrent AutoMigrate calls from multiple replicas.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock.
	// It blocks until the lock is acquired, then releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker creates a MigrationLocker appropriate for the database
// dialect. PostgreSQL uses advisory locks, MySQL uses named locks, and other
// databases use a table-based fallback. A nil cfg uses DefaultConfig; a
// disabled one returns a lock that just runs fn.
func NewMigrationLocker(db *gorm.DB, cfg *Config) (MigrationLocker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if db == nil || !cfg.MigrationLockEnabled {
		return noopMigrationLock{}, nil
	}

	switch db.Dialector.Name() {
	case "postgres":
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(cfg.LockName))),
		}, nil
	case "mysql":
		return &mysqlNamedLock{db: db, name: cfg.LockName, timeout: cfg.LockTimeout}, nil
	}

	// Create the lock table up front so concurrent callers never hit
	// "no such table" on their first WithLock call.
	if err := db.AutoMigrate(&migrationLockRecord{}); err != nil {
		return nil, fmt.Errorf("create migration lock table: %w", err)
	}
	return &fallbackMigrationLock{
		db:       db,
		name:     cfg.LockName,
		holder:   cfg.Identity,
		timeout:  cfg.LockTimeout,
		interval: time.Second,
	}, nil
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// dedicatedConn pins one pool connection, since advisory and named locks
// belong to the session that took them.
func dedicatedConn(ctx context.Context, db *gorm.DB) (*sql.Conn, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return sqlDB.Conn(ctx)
}

// pgAdvisoryLock uses PostgreSQL advisory locks for migration serialization.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	conn, err := dedicatedConn(ctx, l.db)
	if err != nil {
		return fmt.Errorf("acquire migration lock connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.lockID); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", l.lockID)
	}()

	return fn()
}

// mysqlNamedLock uses GET_LOCK/RELEASE_LOCK.
type mysqlNamedLock struct {
	db      *gorm.DB
	name    string
	timeout time.Duration
}

func (l *mysqlNamedLock) WithLock(ctx context.Context, fn func() error) error {
	conn, err := dedicatedConn(ctx, l.db)
	if err != nil {
		return fmt.Errorf("acquire migration lock connection: %w", err)
	}
	defer conn.Close()

	var got sql.NullInt64
	secs := int(l.timeout / time.Second)
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.name, secs).Scan(&got); err != nil {
		return fmt.Errorf("acquire migration named lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return ErrLockTimeout
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", l.name)
	}()

	return fn()
}

// migrationLockRecord is the table-based lock row for databases without
// session locks.
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// fallbackMigrationLock relies on primary key uniqueness: only one replica
// can insert the lock row. Rows older than staleLockAge are treated as left
// behind by a crashed holder.
type fallbackMigrationLock struct {
	db       *gorm.DB
	name     string
	holder   string
	timeout  time.Duration
	interval time.Duration
}

const staleLockAge = 5 * time.Minute

func (l *fallbackMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	deadline := time.Now().Add(l.timeout)
	for {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", l.name, time.Now().Add(-staleLockAge)).
			Delete(&migrationLockRecord{})

		row := migrationLockRecord{ID: l.name, LockedAt: time.Now(), LockedBy: l.holder}
		err := l.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %v", ErrLockTimeout, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}

	defer func() {
		l.db.Where("id = ?", l.name).Delete(&migrationLockRecord{})
	}()

	return fn()
}
