package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/filex"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
	"github.com/ipsvault/ips/internal/server/storage"
)

// Certificate platforms stamped on resources.
const (
	NotarizationPlatform = "IPS notarization platform"
	JudicialPlatform     = "IPS judicial certificate"
)

// FileUpload is one incoming file.
type FileUpload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// AssetInfo is the descriptive metadata submitted with a new asset.
type AssetInfo struct {
	AssetName           string `json:"assetName"`
	AssetNo             string `json:"assetNo"`
	Project             string `json:"project"`
	AssetLevel          string `json:"assetLevel"`
	CreationDate        string `json:"creationDate"`
	Declarant           string `json:"declarant"`
	CreationType        string `json:"creationType"`
	Creator             string `json:"creator"`
	ResourceType        string `json:"resourceType"`
	AuthorizationStatus string `json:"authorizationStatus"`
}

// AssetCreated is the outcome of CreateAsset.
type AssetCreated struct {
	ResourceIDs []int64
	Certificate models.Certificate
}

// ResourceService manages stored assets: uploads, metadata, listings,
// content access and certification.
type ResourceService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	blob          storage.Blob
	logger        logging.Logger
	publicBaseURL string
	maxFiles      int
	now           func() time.Time
}

func NewResourceService(db *sql.DB, m repomanager.RepositoryManager, blob storage.Blob, cfg *config.Config, logger logging.Logger) *ResourceService {
	return &ResourceService{
		db:            db,
		repomanager:   m,
		blob:          blob,
		logger:        logger.With("module", "resources"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxFiles:      cfg.MaxAssetFiles,
		now:           time.Now,
	}
}

// Upload stores a single file and records it as a resource of userID.
func (s *ResourceService) Upload(ctx context.Context, userID int64, resourceType, authorizationStatus string, f FileUpload) (int64, error) {
	if f.Body == nil || f.Name == "" {
		return 0, common.Invalid("please select a file")
	}

	res, err := s.storeFile(ctx, f)
	if err != nil {
		return 0, err
	}
	res.UserID = userID
	res.ResourceType = resourceType
	res.AuthorizationStatus = authorizationStatus

	id, err := s.repomanager.Resources(s.db).Create(ctx, res)
	if err != nil {
		s.discard(ctx, res.FilePath)
		return 0, fmt.Errorf("error saving resource: %w", err)
	}

	s.logger.Info(ctx, "resource uploaded", "resource_id", id, "user_id", userID, "size", res.FileSize)
	return id, nil
}

// CreateAsset stores every file as a resource sharing info and a freshly
// issued notarization certificate. Rows are inserted in one transaction.
func (s *ResourceService) CreateAsset(ctx context.Context, userID int64, info AssetInfo, trademarkRegNo string, files []FileUpload) (*AssetCreated, error) {
	if strings.TrimSpace(info.AssetName) == "" || strings.TrimSpace(info.AssetNo) == "" || strings.TrimSpace(info.Project) == "" {
		return nil, common.Invalid("asset name, asset number and project are required")
	}
	if len(files) == 0 {
		return nil, common.Invalid("please select at least one file")
	}
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return nil, common.Invalid(fmt.Sprintf("at most %d files can be attached to an asset", s.maxFiles))
	}

	stored := make([]*models.Resource, 0, len(files))
	for _, f := range files {
		res, err := s.storeFile(ctx, f)
		if err != nil {
			s.discardAll(ctx, stored)
			return nil, err
		}
		stored = append(stored, res)
	}

	now := s.now()
	cert := models.Certificate{
		CertificateNo: fmt.Sprintf("IPS-%d-%s", now.UnixMilli(), common.RandDigits(4)),
		Platform:      NotarizationPlatform,
		Timestamp:     now.UTC().Format(time.RFC3339),
		FileHash:      combinedHash(stored),
	}
	cert.VerifyURL = s.publicBaseURL + "/verify/" + cert.CertificateNo

	ids := make([]int64, 0, len(stored))
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Resources(tx)
		for _, res := range stored {
			res.UserID = userID
			res.ResourceType = info.ResourceType
			res.AuthorizationStatus = info.AuthorizationStatus
			res.AssetName = info.AssetName
			res.AssetNo = info.AssetNo
			res.Project = info.Project
			res.AssetLevel = info.AssetLevel
			res.CreationDate = info.CreationDate
			res.Declarant = info.Declarant
			res.CreationType = info.CreationType
			res.Creator = info.Creator
			res.TrademarkRegNo = trademarkRegNo
			res.CertificateNo = cert.CertificateNo
			res.CertificatePlatform = cert.Platform
			res.CertificateTimestamp = cert.Timestamp
			res.VerifyURL = cert.VerifyURL

			id, err := repo.Create(ctx, res)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		s.discardAll(ctx, stored)
		return nil, fmt.Errorf("error creating asset: %w", err)
	}

	s.logger.Info(ctx, "asset created", "user_id", userID, "certificate_no", cert.CertificateNo, "files", len(ids))
	return &AssetCreated{ResourceIDs: ids, Certificate: cert}, nil
}

// List returns the user's resources, newest first.
func (s *ResourceService) List(ctx context.Context, userID int64, f models.ResourceFilter) ([]models.Resource, error) {
	return s.repomanager.Resources(s.db).List(ctx, userID, f)
}

func (s *ResourceService) Summary(ctx context.Context) ([]models.ResourceSummary, error) {
	return s.repomanager.Resources(s.db).Summary(ctx)
}

// Detail returns a resource owned by userID with its versions.
func (s *ResourceService) Detail(ctx context.Context, id, userID int64) (*models.ResourceDetail, error) {
	repo := s.repomanager.Resources(s.db)

	res, err := repo.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	versions, err := repo.Versions(ctx, userID, res.AssetName)
	if err != nil {
		return nil, err
	}

	detail := &models.ResourceDetail{
		ResourceVersion: toVersion(res),
		Versions:        make([]models.ResourceVersion, 0, len(versions)),
	}
	for i := range versions {
		detail.Versions = append(detail.Versions, toVersion(&versions[i]))
	}
	return detail, nil
}

// Content opens the stored bytes of a resource. The caller closes the reader.
func (s *ResourceService) Content(ctx context.Context, id int64) (*models.Resource, io.ReadCloser, error) {
	res, err := s.repomanager.Resources(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ok, err := s.blob.Exists(ctx, res.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("error checking blob: %w", err)
	}
	if !ok {
		return nil, nil, common.ErrorBlobMissing
	}
	rc, err := s.blob.Open(ctx, res.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return res, rc, nil
}

// Delete removes the blob and then the row. A blob that cannot be removed is
// logged and does not stop the row from being deleted.
func (s *ResourceService) Delete(ctx context.Context, id, userID int64) error {
	repo := s.repomanager.Resources(s.db)

	res, err := repo.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	if ok, err := s.blob.Exists(ctx, res.FilePath); err == nil && !ok {
		s.logger.Debug(ctx, "blob already gone", "resource_id", id, "key", res.FilePath)
	} else if err := s.blob.Delete(ctx, res.FilePath); err != nil {
		s.logger.Warn(ctx, "failed to delete blob", "resource_id", id, "key", res.FilePath, "error", err)
	}

	if err := repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "resource deleted", "resource_id", id, "user_id", userID)
	return nil
}

// Certify stamps a judicial certificate on the resource and returns it.
func (s *ResourceService) Certify(ctx context.Context, id, userID int64) (*models.Resource, error) {
	now := s.now()
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	certNo := fmt.Sprintf("CERT-%s-%s", ms, common.RandDigits(4))

	repo := s.repomanager.Resources(s.db)
	if err := repo.Certify(ctx, id, userID, certNo, JudicialPlatform, now.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	return repo.GetOwned(ctx, id, userID)
}

// Verify returns the resources carrying certificateNo.
func (s *ResourceService) Verify(ctx context.Context, certificateNo string) ([]models.Resource, error) {
	if certificateNo == "" {
		return nil, common.ErrorNotFound
	}
	found, err := s.repomanager.Resources(s.db).FindByCertificate(ctx, certificateNo)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	return found, nil
}

// storeFile writes f to the blob store and returns an unsaved resource
// describing it. Image fingerprints are computed from the stored bytes.
func (s *ResourceService) storeFile(ctx context.Context, f FileUpload) (*models.Resource, error) {
	name := filepath.Base(strings.ReplaceAll(f.Name, `\`, "/"))
	key := filex.StoredFileName(name)

	size, sum, err := s.blob.Put(ctx, key, f.Body)
	if err != nil {
		return nil, fmt.Errorf("error storing %q: %w", name, err)
	}

	res := &models.Resource{
		Filename: name,
		FileType: contentType(name, f.ContentType),
		FilePath: key,
		FileSize: size,
		FileHash: sum,
	}

	if filex.IsImageName(name) {
		fp, err := fingerprintBlob(ctx, s.blob, key)
		if err != nil {
			s.logger.Debug(ctx, "image not fingerprinted", "filename", name, "error", err)
		} else {
			res.DHash, res.PHash = fp.Encode()
		}
	}
	return res, nil
}

func (s *ResourceService) discard(ctx context.Context, key string) {
	if err := s.blob.Delete(ctx, key); err != nil && !errors.Is(err, common.ErrorBlobMissing) {
		s.logger.Warn(ctx, "failed to remove orphaned blob", "key", key, "error", err)
	}
}

func (s *ResourceService) discardAll(ctx context.Context, stored []*models.Resource) {
	for _, res := range stored {
		s.discard(context.WithoutCancel(ctx), res.FilePath)
	}
}

// combinedHash is the digest of a single file, or the SHA-256 of the
// concatenated hex digests when there are several.
func combinedHash(stored []*models.Resource) string {
	if len(stored) == 1 {
		return stored[0].FileHash
	}
	h := sha256.New()
	for _, res := range stored {
		io.WriteString(h, res.FileHash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func contentType(name, declared string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

func toVersion(r *models.Resource) models.ResourceVersion {
	v := models.ResourceVersion{
		ID:                    r.ID,
		AssetName:             r.AssetName,
		AssetNo:               r.AssetNo,
		CertificateNo:         r.CertificateNo,
		CertificatePlatform:   r.CertificatePlatform,
		CertificateTimestamp:  r.CertificateTimestamp,
		ResourceType:          r.ResourceType,
		AssetLevel:            r.AssetLevel,
		Project:               r.Project,
		Status:                r.AuthorizationStatus,
		InUse:                 r.InUse,
		ExternalAuthorization: r.ExternalAuthorization,
		Creator:               r.Creator,
		CompletionDate:        r.CreationDate,
		RightsOwnership:       r.RightsOwnership,
		Declarant:             r.Declarant,
		DeclarationDate:       r.DeclarationDate,
		Reviewer:              r.Reviewer,
		ReviewDate:            r.ReviewDate,
		Filename:              r.Filename,
		FileType:              r.FileType,
		FileURL:               fmt.Sprintf("/api/resources/%d/content", r.ID),
		IsImage:               filex.IsImageName(r.Filename),
		FileHash:              r.FileHash,
	}
	if v.RightsOwnership == "" {
		v.RightsOwnership = models.DefaultRightsOwnership
	}
	if v.Reviewer == "" {
		v.Reviewer = models.DefaultReviewer
	}
	if v.Status == "" {
		v.Status = models.AuthorizationUnauthorized
	}
	return v
}
