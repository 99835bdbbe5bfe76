// Package tasks persists zip-scan tasks and the matches they record.
package tasks

import (
	"context"

	"github.com/ipsvault/ips/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64, status string) (*models.Task, error)
	Get(ctx context.Context, id int64) (*models.Task, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Task, error)
	SetTotalFiles(ctx context.Context, id int64, total int) error
	AdvanceProgress(ctx context.Context, id int64) (*models.Task, error)
	Complete(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status string) error
	AddMatch(ctx context.Context, m *models.TaskMatch) error
	ListMatches(ctx context.Context, taskID int64) ([]models.TaskMatch, error)
}
