// Package users persists registered accounts.
package users

import (
	"context"

	"github.com/ipsvault/ips/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ExistsByUserName(ctx context.Context, userName string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
