package tasks

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

const taskColumns = `id, user_id, status, progress, total_files, completed_files, created_at, updated_at`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*models.Task, error) {
	t := &models.Task{}
	if err := s.Scan(&t.ID, &t.UserID, &t.Status, &t.Progress, &t.TotalFiles, &t.CompletedFiles, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a task with zero progress and counters.
func (r *SQLiteRepository) Create(ctx context.Context, userID int64, status string) (*models.Task, error) {
	query := `
		INSERT INTO tasks (user_id, status, progress, total_files, completed_files, created_at, updated_at)
		VALUES (?, ?, 0, 0, 0, ?, ?)
		RETURNING id
	`
	now := time.Now().UTC()
	t := &models.Task{UserID: userID, Status: status, CreatedAt: now, UpdatedAt: now}
	if err := r.db.QueryRowContext(ctx, query, userID, status, now, now).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

// ListByUser returns the user's tasks, newest first.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID int64) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) SetTotalFiles(ctx context.Context, id int64, total int) error {
	query := `UPDATE tasks SET total_files = ?, updated_at = ? WHERE id = ?`
	return r.execOne(ctx, query, total, time.Now().UTC(), id)
}

// AdvanceProgress records one processed file. The counter, percentage and
// status change in a single statement, so concurrent workers never lose an
// increment; the task flips to completed once every file is accounted for.
// Only processing tasks advance: anything else yields common.ErrorNotFound.
func (r *SQLiteRepository) AdvanceProgress(ctx context.Context, id int64) (*models.Task, error) {
	query := `
		UPDATE tasks
		SET completed_files = completed_files + 1,
		    progress = CASE WHEN total_files > 0 THEN MIN(100, (completed_files + 1) * 100 / total_files) ELSE 100 END,
		    status = CASE WHEN (completed_files + 1) >= total_files THEN 'completed' ELSE 'processing' END,
		    updated_at = ?
		WHERE id = ? AND status = 'processing'
	`
	if err := r.execOne(ctx, query, time.Now().UTC(), id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Complete marks a processing task done at 100%. Used for empty archives.
func (r *SQLiteRepository) Complete(ctx context.Context, id int64) error {
	query := `
		UPDATE tasks
		SET status = 'completed', progress = 100, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`
	return r.execOne(ctx, query, time.Now().UTC(), id)
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`
	return r.execOne(ctx, query, status, time.Now().UTC(), id)
}

func (r *SQLiteRepository) AddMatch(ctx context.Context, m *models.TaskMatch) error {
	query := `
		INSERT INTO task_matches (task_id, file_path, file_hash, resource_id, asset_name, match_type, similarity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	m.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		m.TaskID, m.FilePath, m.FileHash, m.ResourceID, m.AssetName, m.MatchType, m.Similarity, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListMatches returns a task's matches, strongest first.
func (r *SQLiteRepository) ListMatches(ctx context.Context, taskID int64) ([]models.TaskMatch, error) {
	query := `
		SELECT id, task_id, file_path, file_hash, resource_id, asset_name, match_type, similarity, created_at
		FROM task_matches
		WHERE task_id = ?
		ORDER BY similarity DESC, id
	`
	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.TaskMatch, 0)
	for rows.Next() {
		var m models.TaskMatch
		if err := rows.Scan(&m.ID, &m.TaskID, &m.FilePath, &m.FileHash, &m.ResourceID, &m.AssetName, &m.MatchType, &m.Similarity, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
