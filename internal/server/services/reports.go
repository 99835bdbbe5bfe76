package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/ipsvault/ips/internal/server/report"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
)

// ReportService hands out report links and renders check results as PDF.
type ReportService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	cache         *report.Cache
	publicBaseURL string
}

func NewReportService(db *sql.DB, m repomanager.RepositoryManager, cache *report.Cache, cfg *config.Config) *ReportService {
	return &ReportService{
		db:            db,
		repomanager:   m,
		cache:         cache,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// GenerateReport returns the download URL of the report for resultID.
func (s *ReportService) GenerateReport(ctx context.Context, resultID int64) (string, error) {
	if _, err := s.repomanager.CheckResults(s.db).Get(ctx, resultID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/report/%d", s.publicBaseURL, resultID), nil
}

// ReportFile returns the check result and the path of its rendered PDF.
func (s *ReportService) ReportFile(ctx context.Context, resultID int64) (*models.CheckResult, string, error) {
	result, err := s.repomanager.CheckResults(s.db).Get(ctx, resultID)
	if err != nil {
		return nil, "", err
	}
	path, err := s.cache.Path(result)
	if err != nil {
		return nil, "", err
	}
	return result, path, nil
}
