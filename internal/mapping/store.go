// Package mapping persists the remember-me association between a Telegram
// identity and a backend account email, with a sliding 30-day expiry.
// The database row is the source of truth, not a cache.
package mapping

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/svcdesk/helpdesk-bot/internal/retry"
)

// Store manages the SQLite database holding identity mappings.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	ttl    time.Duration
	retry  retry.Config
	now    func() time.Time
}

// New opens (or creates) the SQLite database and runs migrations.
// ttl is the sliding mapping lifetime; retryCfg governs every mutating
// statement, since the store is shared across concurrent requests.
func New(dbPath string, ttl time.Duration, retryCfg retry.Config, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "mapping").Logger(),
		ttl:    ttl,
		retry:  retryCfg,
		now:    time.Now,
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s.logger.Info().Str("path", dbPath).Msg("mapping store initialized")
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS telegram_user_mapping (
		telegram_id       INTEGER PRIMARY KEY,
		email             TEXT NOT NULL,
		telegram_username TEXT,
		created_at        INTEGER NOT NULL,
		last_used         INTEGER NOT NULL,
		expires_at        INTEGER NOT NULL,
		is_active         INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_mapping_email ON telegram_user_mapping(email);
	CREATE INDEX IF NOT EXISTS idx_mapping_expires ON telegram_user_mapping(expires_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection (for testing).
func (s *Store) DB() *sql.DB {
	return s.db
}
