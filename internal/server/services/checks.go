package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/filex"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/netx"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
	"github.com/ipsvault/ips/internal/server/similarity"
	"github.com/ipsvault/ips/internal/server/storage"
)

// Recommendations attached to check results.
const (
	RecommendHigh   = "high infringement risk"
	RecommendMedium = "medium infringement risk"
	RecommendLow    = "no obvious infringement risk"
)

// CheckService compares remote images against the stored library.
type CheckService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blob        storage.Blob
	logger      logging.Logger
	tempDir     string
	threshold   int
	maxBytes    int64
	timeout     time.Duration
	download    func(ctx context.Context, url, path string, maxBytes int64, timeout time.Duration) (int64, error)
}

func NewCheckService(db *sql.DB, m repomanager.RepositoryManager, blob storage.Blob, cfg *config.Config, logger logging.Logger) *CheckService {
	download := netx.DownloadPublicToFile
	if cfg.AllowPrivateFetch {
		download = netx.DownloadToFile
	}
	return &CheckService{
		db:          db,
		repomanager: m,
		blob:        blob,
		logger:      logger.With("module", "checks"),
		tempDir:     cfg.TempDir,
		threshold:   cfg.SimilarityThreshold,
		maxBytes:    cfg.MaxUploadBytes,
		timeout:     cfg.DownloadTimeout,
		download:    download,
	}
}

// CheckURL downloads the image at rawURL, scores it against every stored
// image and persists the outcome.
func (s *CheckService) CheckURL(ctx context.Context, userID int64, rawURL string) (*models.CheckResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, common.Invalid("a valid http or https url is required")
	}

	dir, err := filex.EnsureDir(s.tempDir)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "check-"+uuid.NewString())
	defer os.Remove(path)

	if _, err := s.download(ctx, rawURL, path, s.maxBytes, s.timeout); err != nil {
		if errors.Is(err, netx.ErrNonPublicAddress) {
			return nil, common.Invalid("the url must point to a public address")
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}

	fp, err := similarity.FingerprintFile(path)
	if err != nil {
		return nil, fmt.Errorf("downloaded content is not a supported image: %w", err)
	}

	library, err := loadImageLibrary(ctx, s.repomanager.Resources(s.db), s.blob, s.logger)
	if err != nil {
		return nil, err
	}

	matches := matchImages(fp, library, s.threshold)
	evidence := make([]models.Evidence, 0, len(matches))
	maxSimilarity := 0
	for _, m := range matches {
		evidence = append(evidence, models.Evidence{
			AssetName:  m.resource.AssetName,
			ID:         m.resource.ID,
			FileType:   m.resource.FileType,
			Similarity: m.similarity,
		})
		maxSimilarity = max(maxSimilarity, m.similarity)
	}
	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Similarity > evidence[j].Similarity
	})

	result := &models.CheckResult{
		UserID:               userID,
		URL:                  rawURL,
		InfringementEvidence: evidence,
	}
	result.RiskLevel, result.Recommendation = assessRisk(maxSimilarity)

	if err := s.repomanager.CheckResults(s.db).Create(ctx, result); err != nil {
		return nil, fmt.Errorf("error saving check result: %w", err)
	}

	s.logger.Info(ctx, "external check finished",
		"result_id", result.ID, "user_id", userID, "risk", result.RiskLevel, "evidence", len(evidence))
	return result, nil
}

func assessRisk(maxSimilarity int) (string, string) {
	switch {
	case maxSimilarity > 70:
		return models.RiskHigh, RecommendHigh
	case maxSimilarity > 40:
		return models.RiskMedium, RecommendMedium
	default:
		return models.RiskLow, RecommendLow
	}
}
