// Package checkresults persists external infringement check outcomes.
package checkresults

import (
	"context"

	"github.com/ipsvault/ips/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, r *models.CheckResult) error
	Get(ctx context.Context, id int64) (*models.CheckResult, error)
}
