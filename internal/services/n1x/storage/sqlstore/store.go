// Package sqlstore provides SQLite and PostgreSQL room storage.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/louisbranch/n1x/internal/platform/storage/sqlmigrate"
	"github.com/louisbranch/n1x/internal/services/n1x/room"
	"github.com/louisbranch/n1x/internal/services/n1x/storage"
	"github.com/louisbranch/n1x/internal/services/n1x/storage/sqlstore/migrations"
	_ "modernc.org/sqlite"
)

// Config selects the dialect and its location.
type Config struct {
	Dialect sqlmigrate.Dialect
	// Path is the SQLite file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
}

// Store persists rooms in SQL.
type Store struct {
	db      *sql.DB
	dialect sqlmigrate.Dialect
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var driver, dsn string
	switch cfg.Dialect {
	case sqlmigrate.SQLite, "":
		cfg.Dialect = sqlmigrate.SQLite
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return nil, fmt.Errorf("storage path is required")
		}
		path = filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		driver = "sqlite"
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	case sqlmigrate.Postgres:
		driver = "pgx"
		dsn = strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
	default:
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Dialect, err)
	}
	if cfg.Dialect == sqlmigrate.SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Dialect, err)
	}
	if err := sqlmigrate.Apply(ctx, db, cfg.Dialect, migrations.FS, string(cfg.Dialect)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, dialect: cfg.Dialect}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetRoom loads a room by id.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*room.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, fmt.Errorf("room id is required")
	}

	var payload string
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`SELECT state_json FROM rooms WHERE id = ?`), roomID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	var state room.State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("decode room %s: %w: %w", roomID, storage.ErrCorrupt, err)
	}
	state.ID = roomID
	state.Restore()
	return &state, nil
}

// PutRoom upserts the room and appends any issued keys not yet recorded.
func (s *Store) PutRoom(ctx context.Context, state *room.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if state == nil || strings.TrimSpace(state.ID) == "" {
		return fmt.Errorf("room id is required")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	daemon, err := state.Daemon.MarshalText()
	if err != nil {
		return fmt.Errorf("encode daemon state: %w", err)
	}
	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put room: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO rooms (id, daemon_state, room_trust, activity_score, state_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   daemon_state = excluded.daemon_state,
		   room_trust = excluded.room_trust,
		   activity_score = excluded.activity_score,
		   state_json = excluded.state_json,
		   updated_at = excluded.updated_at`),
		state.ID,
		string(daemon),
		state.Trust,
		state.Activity,
		string(payload),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("put room: %w", err)
	}
	for _, event := range state.F010Events {
		_, err := tx.ExecContext(ctx, s.dialect.Rebind(
			`INSERT INTO room_keys (room_id, key, witnesses, issued_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (room_id, key) DO NOTHING`),
			state.ID,
			event.Key,
			strings.Join(event.Witnesses, ","),
			toMillis(event.IssuedAt),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record issued key: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put room: %w", err)
	}
	return nil
}

// IssuedKeys returns the keys a room has issued, oldest first. It reads the
// key log directly so validation does not need the full room record.
func (s *Store) IssuedKeys(ctx context.Context, roomID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT key FROM room_keys WHERE room_id = ? ORDER BY issued_at, key`), strings.TrimSpace(roomID))
	if err != nil {
		return nil, fmt.Errorf("list issued keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan issued key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issued keys: %w", err)
	}
	return keys, nil
}
