package services

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/dbtest"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
	"github.com/ipsvault/ips/internal/server/storage"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db   *sql.DB
	rm   repomanager.RepositoryManager
	blob *storage.Local
	cfg  *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.UploadDir = filepath.Join(dir, "resource")
	cfg.TempDir = filepath.Join(dir, "tmp")
	cfg.ReportDir = filepath.Join(dir, "reports")
	cfg.SecretKey = "test-secret"
	cfg.AccessTokenValidityDuration = time.Hour
	cfg.RefreshTokenValidityDuration = 2 * time.Hour
	cfg.ScanWorkers = 2

	rm, err := repomanager.NewSQLiteRepositoryManager(logging.Nop())
	require.NoError(t, err)

	blob, err := storage.NewLocal(cfg.UploadDir)
	require.NoError(t, err)

	return &testEnv{db: dbtest.Open(t), rm: rm, blob: blob, cfg: cfg}
}

func (e *testEnv) resources() *ResourceService {
	return NewResourceService(e.db, e.rm, e.blob, e.cfg, logging.Nop())
}

func (e *testEnv) tasks(ctx context.Context) *TaskService {
	return NewTaskService(ctx, e.db, e.rm, e.blob, e.cfg, logging.Nop())
}

func (e *testEnv) checks() *CheckService {
	return NewCheckService(e.db, e.rm, e.blob, e.cfg, logging.Nop())
}

func (e *testEnv) user(t *testing.T, name string) int64 {
	return dbtest.InsertUser(t, e.db, name)
}

// gradientPNG is a horizontal grey ramp; the inverted ramp hashes as its opposite.
func gradientPNG(t *testing.T, invert bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(x * 4)
			if invert {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(name, contentType string, body []byte) FileUpload {
	return FileUpload{Name: name, ContentType: contentType, Body: bytes.NewReader(body)}
}
