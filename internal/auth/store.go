package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// RefreshTokenStore is the jti allowlist: a refresh token is valid only
// while its jti row exists. Logout and rotation delete rows; a cron job
// purges expired ones.
type RefreshTokenStore struct {
	db *sql.DB
}

func NewRefreshTokenStore(db *sql.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db}
}

func (s *RefreshTokenStore) Save(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (jti, user_id, expires_at) VALUES (?, ?, ?)",
		jti, userID.String(), expiresAt.UnixMilli(),
	)
	if err != nil {
		err = fmt.Errorf("could not store refresh token: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

// Exists reports whether the jti is still allowlisted and unexpired.
func (s *RefreshTokenStore) Exists(ctx context.Context, jti string, now time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM refresh_tokens WHERE jti = ? AND expires_at > ?",
		jti, now.UnixMilli(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		err = fmt.Errorf("could not look up refresh token: %w", err)
		log.Error(err)
		return false, err
	}
	return true, nil
}

func (s *RefreshTokenStore) Delete(ctx context.Context, jti string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE jti = ?", jti)
	if err != nil {
		err = fmt.Errorf("could not delete refresh token: %w", err)
		log.Error(err)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// DeleteExpired removes allowlist rows whose expiry has passed and returns
// how many were removed.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		err = fmt.Errorf("could not purge expired refresh tokens: %w", err)
		log.Error(err)
		return 0, err
	}
	return result.RowsAffected()
}
