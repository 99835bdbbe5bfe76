package models

import "time"

// Task statuses.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// Task tracks a zip scan. Progress is an integer percentage.
type Task struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress"`
	TotalFiles     int       `json:"total_files"`
	CompletedFiles int       `json:"completed_files"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Match kinds recorded by the scanner.
const (
	MatchExact = "exact"
	MatchImage = "image"
)

// TaskMatch links a file found in an archive to a library resource.
type TaskMatch struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	FilePath   string    `json:"file_path"`
	FileHash   string    `json:"file_hash"`
	ResourceID int64     `json:"resource_id"`
	AssetName  string    `json:"asset_name"`
	MatchType  string    `json:"match_type"`
	Similarity int       `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// TaskWithMatches is the task status payload.
type TaskWithMatches struct {
	Task
	Matches []TaskMatch `json:"matches"`
}
