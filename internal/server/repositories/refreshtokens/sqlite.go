// Package refreshtokens provides a SQLite-backed repository for the refresh
// tokens handed out at login.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/server/models"
)

// SQLiteRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create stores token for userID, expiring at now+validity.
func (r *SQLiteRepository) Create(ctx context.Context, userID int64, token string, validity time.Duration) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, userID, token, now.Add(validity), now); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// Find returns the row for token, or common.ErrorNotFound.
func (r *SQLiteRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_at
		FROM refresh_tokens
		WHERE token = ?
	`
	rt := &models.RefreshToken{}
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.Expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rt, nil
}

// Delete removes token, or returns common.ErrorNotFound when no row matched.
func (r *SQLiteRepository) Delete(ctx context.Context, token string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE token = ?
	`
	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// DeleteExpired purges tokens that expired before now and returns how many went.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < ?
	`
	res, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
