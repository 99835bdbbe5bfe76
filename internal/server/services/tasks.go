package services

import (
	"archive/zip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
	"github.com/ipsvault/ips/internal/server/scan"
	"github.com/ipsvault/ips/internal/server/storage"
)

// TaskService runs zip scans. Uploads are extracted synchronously and the
// files are then inspected in the background by a bounded worker pool.
type TaskService struct {
	ctx         context.Context
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blob        storage.Blob
	logger      logging.Logger
	tempDir     string
	workers     int
	threshold   int
	maxBytes    int64
	wg          sync.WaitGroup
}

// NewTaskService builds a TaskService whose background scans stop when ctx
// is cancelled.
func NewTaskService(ctx context.Context, db *sql.DB, m repomanager.RepositoryManager, blob storage.Blob, cfg *config.Config, logger logging.Logger) *TaskService {
	return &TaskService{
		ctx:         ctx,
		db:          db,
		repomanager: m,
		blob:        blob,
		logger:      logger.With("module", "tasks"),
		tempDir:     cfg.TempDir,
		workers:     cfg.ScanWorkers,
		threshold:   cfg.SimilarityThreshold,
		maxBytes:    cfg.MaxUploadBytes,
	}
}

// UploadZip creates a task for the archive in r and starts scanning it.
// The returned task id is valid even when the scan later fails.
func (s *TaskService) UploadZip(ctx context.Context, userID int64, r io.ReaderAt, size int64) (int64, error) {
	repo := s.repomanager.Tasks(s.db)

	task, err := repo.Create(ctx, userID, models.TaskProcessing)
	if err != nil {
		return 0, fmt.Errorf("error creating task: %w", err)
	}
	log := s.logger.With("task_id", task.ID)

	fail := func(cause error) (int64, error) {
		if err := repo.SetStatus(context.WithoutCancel(ctx), task.ID, models.TaskFailed); err != nil {
			log.Error(ctx, "failed to mark task failed", "error", err)
		}
		log.Warn(ctx, "zip scan failed", "error", cause)
		return 0, cause
	}

	zr, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fail(common.Invalid("invalid zip archive"))
	}

	total := scan.CountFiles(zr)
	if err := repo.SetTotalFiles(ctx, task.ID, total); err != nil {
		return fail(err)
	}

	dir := filepath.Join(s.tempDir, uuid.NewString())
	files, err := scan.Extract(ctx, zr, dir, s.maxBytes)
	if err != nil {
		_ = os.RemoveAll(dir)
		if errors.Is(err, scan.ErrIllegalPath) || errors.Is(err, scan.ErrArchiveLarge) {
			return fail(common.Invalid(err.Error()))
		}
		return fail(fmt.Errorf("error extracting archive: %w", err))
	}

	// duplicate entry names collapse on disk
	if len(files) != total {
		if err := repo.SetTotalFiles(ctx, task.ID, len(files)); err != nil {
			_ = os.RemoveAll(dir)
			return fail(err)
		}
	}

	if len(files) == 0 {
		_ = os.RemoveAll(dir)
		if err := repo.Complete(ctx, task.ID); err != nil {
			return fail(err)
		}
		log.Info(ctx, "empty archive, task completed")
		return task.ID, nil
	}

	log.Info(ctx, "zip scan started", "files", len(files))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(task.ID, dir, files)
	}()

	return task.ID, nil
}

// Wait blocks until every background scan has returned.
func (s *TaskService) Wait() {
	s.wg.Wait()
}

func (s *TaskService) process(taskID int64, dir string, files []string) {
	ctx := s.ctx
	log := s.logger.With("task_id", taskID)
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn(ctx, "failed to remove scan directory", "dir", dir, "error", err)
		}
	}()

	resRepo := s.repomanager.Resources(s.db)
	taskRepo := s.repomanager.Tasks(s.db)

	library, err := loadImageLibrary(ctx, resRepo, s.blob, log)
	if err != nil {
		s.markFailed(taskID, err)
		return
	}

	err = scan.Each(ctx, files, s.workers, func(ctx context.Context, rel string) error {
		rep, err := scan.Inspect(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			log.Warn(ctx, "file not inspected", "file", rel, "error", err)
		} else if err := s.recordMatches(ctx, taskID, rel, rep, library); err != nil {
			log.Warn(ctx, "matches not recorded", "file", rel, "error", err)
		}

		_, err = taskRepo.AdvanceProgress(ctx, taskID)
		return err
	})
	if err != nil {
		s.markFailed(taskID, err)
		return
	}

	log.Info(ctx, "zip scan completed", "files", len(files))
}

func (s *TaskService) recordMatches(ctx context.Context, taskID int64, rel string, rep scan.FileReport, library []libraryImage) error {
	taskRepo := s.repomanager.Tasks(s.db)

	exact, err := s.repomanager.Resources(s.db).FindByFileHash(ctx, rep.SHA256)
	if err != nil {
		return err
	}

	seen := make(map[int64]struct{}, len(exact))
	for _, res := range exact {
		seen[res.ID] = struct{}{}
		if err := taskRepo.AddMatch(ctx, &models.TaskMatch{
			TaskID:     taskID,
			FilePath:   rel,
			FileHash:   rep.SHA256,
			ResourceID: res.ID,
			AssetName:  res.AssetName,
			MatchType:  models.MatchExact,
			Similarity: 100,
		}); err != nil {
			return err
		}
	}

	if rep.Fingerprint == nil {
		return nil
	}
	for _, m := range matchImages(*rep.Fingerprint, library, s.threshold) {
		if _, dup := seen[m.resource.ID]; dup {
			continue
		}
		if err := taskRepo.AddMatch(ctx, &models.TaskMatch{
			TaskID:     taskID,
			FilePath:   rel,
			FileHash:   rep.SHA256,
			ResourceID: m.resource.ID,
			AssetName:  m.resource.AssetName,
			MatchType:  models.MatchImage,
			Similarity: m.similarity,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *TaskService) markFailed(taskID int64, cause error) {
	ctx := context.WithoutCancel(s.ctx)
	if err := s.repomanager.Tasks(s.db).SetStatus(ctx, taskID, models.TaskFailed); err != nil {
		s.logger.Error(ctx, "failed to mark task failed", "task_id", taskID, "error", err)
	}
	s.logger.Warn(ctx, "zip scan failed", "task_id", taskID, "error", cause)
}

// Get returns the task with its matches. Tasks of other users are reported
// as not found.
func (s *TaskService) Get(ctx context.Context, taskID, userID int64) (*models.TaskWithMatches, error) {
	repo := s.repomanager.Tasks(s.db)

	task, err := repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, common.ErrorNotFound
	}

	matches, err := repo.ListMatches(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &models.TaskWithMatches{Task: *task, Matches: matches}, nil
}

// ListByUser returns the tasks of userID, newest first. Only the user may list them.
func (s *TaskService) ListByUser(ctx context.Context, callerID, userID int64) ([]models.Task, error) {
	if callerID != userID {
		return nil, common.ErrorForbidden
	}
	return s.repomanager.Tasks(s.db).ListByUser(ctx, userID)
}
