package mapping

import (
	"context"
	"database/sql"
	"errors"
	"time"

	herrors "github.com/svcdesk/helpdesk-bot/internal/errors"
	"github.com/svcdesk/helpdesk-bot/internal/retry"
)

// Mapping is one remember-me row.
type Mapping struct {
	TelegramID int64
	Email      string
	Username   string
	CreatedAt  int64
	LastUsed   int64
	ExpiresAt  int64
	IsActive   bool
}

// Save inserts or replaces the mapping for a Telegram user. Re-linking the
// same telegram_id to a different email overwrites the existing row; the
// primary key keeps the table duplicate-free.
func (s *Store) Save(ctx context.Context, telegramID int64, email, username string) error {
	if telegramID <= 0 || email == "" {
		return herrors.ErrInvalidInput
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		now := s.now().UnixMilli()
		expires := s.now().Add(s.ttl).UnixMilli()

		query := `
		INSERT INTO telegram_user_mapping
			(telegram_id, email, telegram_username, created_at, last_used, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(telegram_id) DO UPDATE SET
			email = excluded.email,
			telegram_username = excluded.telegram_username,
			created_at = excluded.created_at,
			last_used = excluded.last_used,
			expires_at = excluded.expires_at,
			is_active = 1
		`

		if _, err := s.db.ExecContext(ctx, query,
			telegramID, email,
			sql.NullString{String: username, Valid: username != ""},
			now, now, expires,
		); err != nil {
			return herrors.WrapStorage("save mapping", err)
		}

		s.logger.Info().Int64("telegram_id", telegramID).Str("email", email).Msg("mapping saved")
		return nil
	})
}

// Lookup returns the email for a Telegram user if an active, unexpired
// mapping exists, and slides the expiry forward by the full TTL from now.
// The renew-and-read runs as one statement so concurrent lookups cannot
// observe a half-applied renewal. Expired or inactive rows behave as
// not found.
func (s *Store) Lookup(ctx context.Context, telegramID int64) (string, error) {
	if telegramID <= 0 {
		return "", herrors.ErrInvalidInput
	}

	var email string
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		now := s.now().UnixMilli()
		expires := s.now().Add(s.ttl).UnixMilli()

		query := `
		UPDATE telegram_user_mapping
		SET last_used = ?, expires_at = ?
		WHERE telegram_id = ? AND is_active = 1 AND expires_at > ?
		RETURNING email
		`

		scanErr := s.db.QueryRowContext(ctx, query, now, expires, telegramID, now).Scan(&email)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return herrors.ErrNotFound
		}
		if scanErr != nil {
			return herrors.WrapStorage("lookup mapping", scanErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug().Int64("telegram_id", telegramID).Msg("mapping renewed")
	return email, nil
}

// Deactivate soft-deletes the mapping, used on explicit unlink or upstream
// credential revocation.
func (s *Store) Deactivate(ctx context.Context, telegramID int64) error {
	if telegramID <= 0 {
		return herrors.ErrInvalidInput
	}

	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE telegram_user_mapping SET is_active = 0 WHERE telegram_id = ?`,
			telegramID)
		if err != nil {
			return herrors.WrapStorage("deactivate mapping", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return herrors.WrapStorage("deactivate mapping", err)
		}
		if rows == 0 {
			return herrors.ErrNotFound
		}

		s.logger.Info().Int64("telegram_id", telegramID).Msg("mapping deactivated")
		return nil
	})
}

// PurgeExpired hard-deletes inactive rows and rows whose expiry passed more
// than grace ago. Maintenance path only, never called while serving a
// request.
func (s *Store) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	var purged int64
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		cutoff := s.now().Add(-grace).UnixMilli()

		res, err := s.db.ExecContext(ctx,
			`DELETE FROM telegram_user_mapping WHERE is_active = 0 OR expires_at < ?`,
			cutoff)
		if err != nil {
			return herrors.WrapStorage("purge mappings", err)
		}

		purged, err = res.RowsAffected()
		if err != nil {
			return herrors.WrapStorage("purge mappings", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if purged > 0 {
		s.logger.Info().Int64("purged", purged).Msg("expired mappings removed")
	}
	return purged, nil
}

// Get retrieves the raw row regardless of active/expired state, for
// diagnostics and tests.
func (s *Store) Get(ctx context.Context, telegramID int64) (*Mapping, error) {
	m := &Mapping{}
	var username sql.NullString
	var active int

	query := `
	SELECT telegram_id, email, telegram_username, created_at, last_used, expires_at, is_active
	FROM telegram_user_mapping WHERE telegram_id = ?
	`

	err := s.db.QueryRowContext(ctx, query, telegramID).Scan(
		&m.TelegramID, &m.Email, &username, &m.CreatedAt, &m.LastUsed, &m.ExpiresAt, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, herrors.ErrNotFound
	}
	if err != nil {
		return nil, herrors.WrapStorage("get mapping", err)
	}

	if username.Valid {
		m.Username = username.String
	}
	m.IsActive = active == 1
	return m, nil
}
