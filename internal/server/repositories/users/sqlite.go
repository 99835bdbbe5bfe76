package users

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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts user and fills in ID and CreatedAt. A duplicate username or
// email yields common.ErrorAlreadyExists.
func (r *SQLiteRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, password, created_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING id`

	user.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Email, user.PasswordHash, user.CreatedAt).Scan(&user.ID)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *SQLiteRepository) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	query :=
		`SELECT id, username, email, password, created_at FROM users
		 WHERE username = ?`

	return r.scanOne(ctx, query, userName)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query :=
		`SELECT id, username, email, password, created_at FROM users
		 WHERE id = ?`

	return r.scanOne(ctx, query, id)
}

func (r *SQLiteRepository) ExistsByUserName(ctx context.Context, userName string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, userName)
}

func (r *SQLiteRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email)
}

func (r *SQLiteRepository) scanOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *SQLiteRepository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return found, nil
}
