package exchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/crypto"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS exchange_tokens (
	key        TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS exchange_tokens_expires_at ON exchange_tokens (expires_at);
`

// SQLiteStore keeps entries in a local SQLite database. Consume is a single
// DELETE ... RETURNING statement.
type SQLiteStore struct {
	db        *sql.DB
	encryptor crypto.Encryptor
	ttl       time.Duration
	now       func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates if needed) the database at path. encryptor
// may be nil to store tokens in plain text.
func OpenSQLite(path string, encryptor crypto.Encryptor, ttl time.Duration) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, encryptor: encryptor, ttl: ttl, now: time.Now}, nil
}

// Close releases the underlying SQLite connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, key, token string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	stored := token
	if s.encryptor != nil {
		sealed, err := s.encryptor.Encrypt(token)
		if err != nil {
			return fmt.Errorf("encrypting token: %w", err)
		}
		stored = sealed
	}

	e := newEntry(stored, s.now(), s.ttl)
	var expiresAt int64
	if !e.ExpiresAt.IsZero() {
		expiresAt = e.ExpiresAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchange_tokens (key, token, created_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			token = excluded.token,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, e.Token, e.CreatedAt.UnixMilli(), expiresAt,
	)
	if err != nil {
		return autherr.StoreUnavailable("put", err)
	}
	return nil
}

func (s *SQLiteStore) Consume(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var stored string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM exchange_tokens WHERE key = ? RETURNING token, expires_at`,
		key,
	).Scan(&stored, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, autherr.StoreUnavailable("consume", err)
	}

	if expiresAt > 0 && !s.now().Before(time.UnixMilli(expiresAt)) {
		return "", false, nil
	}

	if s.encryptor == nil {
		return stored, true, nil
	}
	token, err := s.encryptor.Decrypt(stored)
	if err != nil {
		return "", false, fmt.Errorf("decrypting token: %w", err)
	}
	return token, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchange_tokens WHERE key = ?`, key); err != nil {
		return autherr.StoreUnavailable("delete", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM exchange_tokens WHERE expires_at > 0 AND expires_at <= ?`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return 0, autherr.StoreUnavailable("delete expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
