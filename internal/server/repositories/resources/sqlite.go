package resources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/server/models"
)

const selectColumns = `id, filename, file_type, file_path, file_size, uploaded_at, user_id,
	resource_type, COALESCE(authorization_status, 'unauthorized'),
	asset_name, asset_no, project, asset_level, creation_date, declarant, creation_type,
	creator, trademark_reg_no, certificate_no, certificate_platform, certificate_timestamp,
	file_hash, verify_url, in_use, external_authorization, rights_ownership,
	declaration_date, reviewer, review_date, dhash, phash`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(s rowScanner) (*models.Resource, error) {
	r := &models.Resource{}
	err := s.Scan(&r.ID, &r.Filename, &r.FileType, &r.FilePath, &r.FileSize, &r.UploadedAt, &r.UserID,
		&r.ResourceType, &r.AuthorizationStatus,
		&r.AssetName, &r.AssetNo, &r.Project, &r.AssetLevel, &r.CreationDate, &r.Declarant, &r.CreationType,
		&r.Creator, &r.TrademarkRegNo, &r.CertificateNo, &r.CertificatePlatform, &r.CertificateTimestamp,
		&r.FileHash, &r.VerifyURL, &r.InUse, &r.ExternalAuthorization, &r.RightsOwnership,
		&r.DeclarationDate, &r.Reviewer, &r.ReviewDate, &r.DHash, &r.PHash)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Create inserts r and returns the new id. UploadedAt defaults to now.
func (r *SQLiteRepository) Create(ctx context.Context, res *models.Resource) (int64, error) {
	query := `
		INSERT INTO resources (
			filename, file_type, file_path, file_size, uploaded_at, user_id, resource_type,
			authorization_status, asset_name, asset_no, project, asset_level, creation_date,
			declarant, creation_type, creator, trademark_reg_no, certificate_no,
			certificate_platform, certificate_timestamp, file_hash, verify_url,
			dhash, phash
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if res.UploadedAt.IsZero() {
		res.UploadedAt = time.Now().UTC()
	}
	if res.AuthorizationStatus == "" {
		res.AuthorizationStatus = models.AuthorizationUnauthorized
	}

	err := r.db.QueryRowContext(ctx, query,
		res.Filename, res.FileType, res.FilePath, res.FileSize, res.UploadedAt, res.UserID, res.ResourceType,
		res.AuthorizationStatus, res.AssetName, res.AssetNo, res.Project, res.AssetLevel, res.CreationDate,
		res.Declarant, res.CreationType, res.Creator, res.TrademarkRegNo, res.CertificateNo,
		res.CertificatePlatform, res.CertificateTimestamp, res.FileHash, res.VerifyURL,
		res.DHash, res.PHash,
	).Scan(&res.ID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.ID, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Resource, error) {
	query := `SELECT ` + selectColumns + ` FROM resources WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetOwned is GetByID restricted to rows of userID.
func (r *SQLiteRepository) GetOwned(ctx context.Context, id, userID int64) (*models.Resource, error) {
	query := `SELECT ` + selectColumns + ` FROM resources WHERE id = ? AND user_id = ?`
	return r.getOne(ctx, query, id, userID)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, args ...any) (*models.Resource, error) {
	res, err := scanResource(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

// List returns the user's resources, newest first, narrowed by f.
func (r *SQLiteRepository) List(ctx context.Context, userID int64, f models.ResourceFilter) ([]models.Resource, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + selectColumns + ` FROM resources WHERE user_id = ?`)
	args := []any{userID}

	if kw := strings.TrimSpace(f.SearchKeyword); kw != "" {
		sb.WriteString(` AND (asset_name LIKE ? OR asset_no LIKE ?)`)
		like := "%" + kw + "%"
		args = append(args, like, like)
	}
	if f.Project != "" {
		sb.WriteString(` AND project = ?`)
		args = append(args, f.Project)
	}
	if f.Type != "" {
		sb.WriteString(` AND resource_type = ?`)
		args = append(args, f.Type)
	}
	if f.AssetLevel != "" {
		sb.WriteString(` AND asset_level = ?`)
		args = append(args, f.AssetLevel)
	}
	sb.WriteString(` ORDER BY id DESC`)

	return r.queryMany(ctx, sb.String(), args...)
}

// Summary counts resources per type and authorization status across all users.
func (r *SQLiteRepository) Summary(ctx context.Context) ([]models.ResourceSummary, error) {
	query := `
		SELECT resource_type, COALESCE(authorization_status, 'unauthorized') AS status, COUNT(*) AS count
		FROM resources
		GROUP BY resource_type, COALESCE(authorization_status, 'unauthorized')
		ORDER BY count DESC, resource_type, status
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.ResourceSummary, 0)
	for rows.Next() {
		var s models.ResourceSummary
		if err := rows.Scan(&s.ResourceType, &s.AuthorizationStatus, &s.Count); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Versions returns the user's rows named assetName, highest id first.
func (r *SQLiteRepository) Versions(ctx context.Context, userID int64, assetName string) ([]models.Resource, error) {
	query := `SELECT ` + selectColumns + ` FROM resources WHERE user_id = ? AND asset_name = ? ORDER BY id DESC`
	return r.queryMany(ctx, query, userID, assetName)
}

// Certify overwrites the certificate fields of a resource owned by userID.
func (r *SQLiteRepository) Certify(ctx context.Context, id, userID int64, certificateNo, platform, timestamp string) error {
	query := `
		UPDATE resources
		SET certificate_no = ?, certificate_timestamp = ?, certificate_platform = ?
		WHERE id = ? AND user_id = ?
	`
	res, err := r.db.ExecContext(ctx, query, certificateNo, timestamp, platform, id, userID)
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

func (r *SQLiteRepository) FindByCertificate(ctx context.Context, certificateNo string) ([]models.Resource, error) {
	query := `SELECT ` + selectColumns + ` FROM resources WHERE certificate_no = ? ORDER BY id`
	return r.queryMany(ctx, query, certificateNo)
}

func (r *SQLiteRepository) FindByFileHash(ctx context.Context, fileHash string) ([]models.Resource, error) {
	query := `SELECT ` + selectColumns + ` FROM resources WHERE file_hash = ? ORDER BY id`
	return r.queryMany(ctx, query, fileHash)
}

// ListImages returns every resource whose MIME type mentions "image".
func (r *SQLiteRepository) ListImages(ctx context.Context) ([]models.Resource, error) {
	query := `SELECT ` + selectColumns + ` FROM resources WHERE file_type LIKE ? ORDER BY id`
	return r.queryMany(ctx, query, "%image%")
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
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

func (r *SQLiteRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Resource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.Resource, 0)
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
