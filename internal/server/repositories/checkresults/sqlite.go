package checkresults

import (
	"context"
	"database/sql"
	"encoding/json"
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

// Create stores r; evidence is kept as a JSON array.
func (r *SQLiteRepository) Create(ctx context.Context, res *models.CheckResult) error {
	evidence := res.InfringementEvidence
	if evidence == nil {
		evidence = []models.Evidence{}
	}
	b, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}

	query := `
		INSERT INTO check_results (user_id, url, risk_level, recommendation, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	res.CreatedAt = time.Now().UTC()
	if err := r.db.QueryRowContext(ctx, query,
		res.UserID, res.URL, res.RiskLevel, res.Recommendation, string(b), res.CreatedAt,
	).Scan(&res.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.CheckResult, error) {
	query := `
		SELECT id, user_id, url, risk_level, recommendation, evidence, created_at
		FROM check_results
		WHERE id = ?
	`
	res := &models.CheckResult{}
	var evidence string
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&res.ID, &res.UserID, &res.URL, &res.RiskLevel, &res.Recommendation, &evidence, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal([]byte(evidence), &res.InfringementEvidence); err != nil {
		return nil, fmt.Errorf("decode evidence: %w", err)
	}
	return res, nil
}
