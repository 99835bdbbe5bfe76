package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveBytes replaces the downloader with one that writes body to the target path.
func serveBytes(s *CheckService, body []byte) {
	s.download = func(_ context.Context, _, path string, _ int64, _ time.Duration) (int64, error) {
		return int64(len(body)), os.WriteFile(path, body, 0o600)
	}
}

func TestCheckService_HighRisk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.user(t, "alice")

	rs := env.resources()
	logoID, err := rs.Upload(ctx, uid, "image", "", upload("logo.png", "image/png", gradientPNG(t, false)))
	require.NoError(t, err)
	_, err = rs.Upload(ctx, uid, "image", "", upload("dark.png", "image/png", gradientPNG(t, true)))
	require.NoError(t, err)
	_, err = rs.Upload(ctx, uid, "code", "", upload("main.go", "text/x-go", []byte("package main")))
	require.NoError(t, err)

	s := env.checks()
	serveBytes(s, gradientPNG(t, false))

	res, err := s.CheckURL(ctx, uid, "https://example.com/logo.png")
	require.NoError(t, err)
	assert.NotZero(t, res.ID)
	assert.Equal(t, models.RiskHigh, res.RiskLevel)
	assert.Equal(t, RecommendHigh, res.Recommendation)
	require.Len(t, res.InfringementEvidence, 1)
	assert.Equal(t, logoID, res.InfringementEvidence[0].ID)
	assert.Equal(t, 100, res.InfringementEvidence[0].Similarity)
	assert.Equal(t, "image/png", res.InfringementEvidence[0].FileType)

	stored, err := env.rm.CheckResults(env.db).Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.RiskLevel, stored.RiskLevel)
	assert.Len(t, stored.InfringementEvidence, 1)
}

func TestCheckService_UsesBlobWhenHashesMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.user(t, "alice")

	id, err := env.resources().Upload(ctx, uid, "image", "", upload("logo.png", "image/png", gradientPNG(t, false)))
	require.NoError(t, err)
	_, err = env.db.Exec(`UPDATE resources SET dhash = '', phash = '' WHERE id = ?`, id)
	require.NoError(t, err)

	s := env.checks()
	serveBytes(s, gradientPNG(t, false))

	res, err := s.CheckURL(ctx, uid, "http://example.com/x.png")
	require.NoError(t, err)
	require.Len(t, res.InfringementEvidence, 1)
	assert.Equal(t, id, res.InfringementEvidence[0].ID)
}

func TestCheckService_LowRiskWithEmptyLibrary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.user(t, "alice")

	s := env.checks()
	serveBytes(s, gradientPNG(t, false))

	res, err := s.CheckURL(ctx, uid, "https://example.com/logo.png")
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, res.RiskLevel)
	assert.Equal(t, RecommendLow, res.Recommendation)
	assert.Empty(t, res.InfringementEvidence)
}

func TestCheckService_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.user(t, "alice")
	s := env.checks()

	_, err := s.CheckURL(ctx, uid, "ftp://example.com/a.png")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.CheckURL(ctx, uid, "")
	assert.ErrorIs(t, err, common.ErrorValidation)

	boom := errors.New("connection refused")
	s.download = func(context.Context, string, string, int64, time.Duration) (int64, error) { return 0, boom }
	_, err = s.CheckURL(ctx, uid, "https://example.com/a.png")
	assert.ErrorIs(t, err, boom)

	serveBytes(s, []byte("<html>not an image</html>"))
	_, err = s.CheckURL(ctx, uid, "https://example.com/page")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorValidation)
}

func TestAssessRisk(t *testing.T) {
	tests := []struct {
		max  int
		risk string
		rec  string
	}{
		{100, models.RiskHigh, RecommendHigh},
		{71, models.RiskHigh, RecommendHigh},
		{70, models.RiskMedium, RecommendMedium},
		{41, models.RiskMedium, RecommendMedium},
		{40, models.RiskLow, RecommendLow},
		{0, models.RiskLow, RecommendLow},
	}
	for _, tt := range tests {
		risk, rec := assessRisk(tt.max)
		assert.Equal(t, tt.risk, risk, "max=%d", tt.max)
		assert.Equal(t, tt.rec, rec, "max=%d", tt.max)
	}
}

func TestCheckService_PrivateAddresses(t *testing.T) {
	img := gradientPNG(t, false)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer remote.Close()

	env := newTestEnv(t)
	ctx := context.Background()
	uid := env.user(t, "alice")

	_, err := env.checks().CheckURL(ctx, uid, remote.URL+"/logo.png")
	assert.ErrorIs(t, err, common.ErrorValidation, "loopback is refused by default")

	env.cfg.AllowPrivateFetch = true
	res, err := env.checks().CheckURL(ctx, uid, remote.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, res.RiskLevel)
}
