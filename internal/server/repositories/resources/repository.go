// Package resources persists uploaded assets and their metadata.
package resources

import (
	"context"

	"github.com/ipsvault/ips/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, r *models.Resource) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Resource, error)
	GetOwned(ctx context.Context, id, userID int64) (*models.Resource, error)
	List(ctx context.Context, userID int64, f models.ResourceFilter) ([]models.Resource, error)
	Summary(ctx context.Context) ([]models.ResourceSummary, error)
	Versions(ctx context.Context, userID int64, assetName string) ([]models.Resource, error)
	Certify(ctx context.Context, id, userID int64, certificateNo, platform, timestamp string) error
	FindByCertificate(ctx context.Context, certificateNo string) ([]models.Resource, error)
	FindByFileHash(ctx context.Context, fileHash string) ([]models.Resource, error)
	ListImages(ctx context.Context) ([]models.Resource, error)
	Delete(ctx context.Context, id int64) error
}
