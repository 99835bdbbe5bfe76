package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/dbtest"
	"github.com/ipsvault/ips/internal/server/report"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
	"github.com/ipsvault/ips/internal/server/services"
	"github.com/ipsvault/ips/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	handler http.Handler
	tasks   *services.TaskService
	cfg     *config.Config
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.UploadDir = filepath.Join(dir, "resource")
	cfg.TempDir = filepath.Join(dir, "tmp")
	cfg.ReportDir = filepath.Join(dir, "reports")
	cfg.StaticDir = filepath.Join(dir, "missing-build")
	cfg.SecretKey = "test-secret"
	cfg.ScanWorkers = 2
	// external checks fetch from httptest servers on loopback
	cfg.AllowPrivateFetch = true

	db := dbtest.Open(t)
	rm, err := repomanager.NewSQLiteRepositoryManager(logging.Nop())
	require.NoError(t, err)
	blob, err := storage.NewLocal(cfg.UploadDir)
	require.NoError(t, err)
	cache, err := report.NewCache(cfg.ReportDir)
	require.NoError(t, err)

	l := logging.Nop()
	ts := services.NewTaskService(context.Background(), db, rm, blob, cfg, l)
	srv := NewHTTPServer(cfg, l,
		services.NewUserService(db, rm, cfg),
		services.NewResourceService(db, rm, blob, cfg, l),
		ts,
		services.NewCheckService(db, rm, blob, cfg, l),
		services.NewReportService(db, rm, cache, cfg),
	)
	return &apiEnv{handler: srv.Handler(), tasks: ts, cfg: cfg}
}

func (e *apiEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, token string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type formFile struct {
	field, name string
	body        []byte
}

func multipartRequest(t *testing.T, path, token string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = w.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type session struct {
	ID           int64
	AccessToken  string
	RefreshToken string
}

func (e *apiEnv) signup(t *testing.T, name string) session {
	t.Helper()
	w := e.do(t, jsonRequest(http.MethodPost, "/api/register", "", map[string]string{
		"username": name, "email": name + "@example.com", "password": "pw-" + name,
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, jsonRequest(http.MethodPost, "/api/login", "", map[string]string{
		"username": name, "password": "pw-" + name,
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, w, &out)
	return session{ID: out.User.ID, AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
}

func gradientPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 4)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAuthFlow(t *testing.T) {
	api := newAPI(t)
	alice := api.signup(t, "alice")
	assert.NotZero(t, alice.ID)

	w := api.do(t, jsonRequest(http.MethodPost, "/api/register", "", map[string]string{
		"username": "alice", "email": "x@example.com", "password": "pw",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"username already exists"}`, w.Body.String())

	w = api.do(t, jsonRequest(http.MethodPost, "/api/register", "", map[string]string{
		"username": "other", "email": "alice@example.com", "password": "pw",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"email already registered"}`, w.Body.String())

	w = api.do(t, jsonRequest(http.MethodPost, "/api/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, jsonRequest(http.MethodPost, "/api/login", "", map[string]string{"username": "alice"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, jsonRequest(http.MethodPost, "/api/token/refresh", "", map[string]string{
		"refresh_token": alice.RefreshToken,
	}))
	require.Equal(t, http.StatusOK, w.Code)
	var pair map[string]string
	decode(t, w, &pair)
	assert.NotEmpty(t, pair["access_token"])
	assert.NotEqual(t, alice.RefreshToken, pair["refresh_token"])

	w = api.do(t, jsonRequest(http.MethodPost, "/api/token/refresh", "", map[string]string{
		"refresh_token": alice.RefreshToken,
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newAPI(t)

	w := api.do(t, jsonRequest(http.MethodGet, "/api/resources", "", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"missing token"}`, w.Body.String())

	w = api.do(t, jsonRequest(http.MethodGet, "/api/resources", "garbage", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"message":"invalid token"}`, w.Body.String())
}

func TestResourceLifecycle(t *testing.T) {
	api := newAPI(t)
	alice := api.signup(t, "alice")
	bob := api.signup(t, "bob")

	w := api.do(t, multipartRequest(t, "/api/upload", alice.AccessToken,
		map[string]string{"resourceType": "code"},
		formFile{field: "file", name: "main.go", body: []byte("package main")}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var up struct {
		ResourceID int64 `json:"resourceId"`
	}
	decode(t, w, &up)
	require.NotZero(t, up.ResourceID)

	w = api.do(t, multipartRequest(t, "/api/upload", alice.AccessToken, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, jsonRequest(http.MethodGet, "/api/resources?type=code", alice.AccessToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "main.go", list[0]["filename"])
	assert.Equal(t, "unauthorized", list[0]["authorization_status"])

	w = api.do(t, jsonRequest(http.MethodGet, "/api/resources", bob.AccessToken, nil))
	decode(t, w, &list)
	assert.Empty(t, list)

	w = api.do(t, jsonRequest(http.MethodGet, "/api/resources/summary", "", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"resource_type":"code","authorization_status":"unauthorized","count":1}]`, w.Body.String())

	path := fmt.Sprintf("/api/resources/%d", up.ResourceID)

	w = api.do(t, jsonRequest(http.MethodGet, path, alice.AccessToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]any
	decode(t, w, &detail)
	assert.Equal(t, path+"/content", detail["file_url"])
	assert.Equal(t, false, detail["is_image"])
	assert.Equal(t, "company-owned", detail["rights_ownership"])

	w = api.do(t, jsonRequest(http.MethodGet, path, bob.AccessToken, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, httptest.NewRequest(http.MethodGet, path+"/content", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "package main", w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "inline;"))

	w = api.do(t, httptest.NewRequest(http.MethodGet, path+"/download", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="main.go"`, w.Header().Get("Content-Disposition"))

	w = api.do(t, jsonRequest(http.MethodPost, path+"/certify", alice.AccessToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var cert struct {
		Success bool `json:"success"`
		Asset   struct {
			CertificateNo string `json:"certificate_no"`
		} `json:"asset"`
	}
	decode(t, w, &cert)
	assert.True(t, cert.Success)
	assert.Regexp(t, `^CERT-\d{8}-\d{4}$`, cert.Asset.CertificateNo)

	w = api.do(t, httptest.NewRequest(http.MethodGet, "/verify/"+cert.Asset.CertificateNo, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, jsonRequest(http.MethodDelete, path, bob.AccessToken, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, jsonRequest(http.MethodDelete, path, alice.AccessToken, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, httptest.NewRequest(http.MethodGet, path+"/content", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAsset(t *testing.T) {
	api := newAPI(t)
	alice := api.signup(t, "alice")

	info := `{"assetName":"Logo","assetNo":"A-1","project":"Brand","resourceType":"image"}`
	w := api.do(t, multipartRequest(t, "/api/assets/create", alice.AccessToken,
		map[string]string{"assetInfo": info, "trademarkRegNo": "TM-1"},
		formFile{field: "files", name: "logo.png", body: gradientPNG(t)},
		formFile{field: "files", name: "notes.txt", body: []byte("notes")}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		ResourceIDs []int64 `json:"resourceIds"`
		Certificate struct {
			CertificateNo string `json:"certificateNo"`
			Platform      string `json:"platform"`
			VerifyURL     string `json:"verifyUrl"`
			FileHash      string `json:"fileHash"`
		} `json:"certificate"`
	}
	decode(t, w, &out)
	assert.Len(t, out.ResourceIDs, 2)
	assert.Regexp(t, `^IPS-\d+-\d{4}$`, out.Certificate.CertificateNo)
	assert.Equal(t, "IPS notarization platform", out.Certificate.Platform)
	assert.Equal(t, "http://localhost:4000/verify/"+out.Certificate.CertificateNo, out.Certificate.VerifyURL)
	assert.Len(t, out.Certificate.FileHash, 64)

	w = api.do(t, multipartRequest(t, "/api/assets/create", alice.AccessToken,
		map[string]string{"assetInfo": `{"assetName":"Logo"}`},
		formFile{field: "files", name: "a.txt", body: []byte("a")}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, multipartRequest(t, "/api/assets/create", alice.AccessToken,
		map[string]string{"assetInfo": info}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestZipScan(t *testing.T) {
	api := newAPI(t)
	alice := api.signup(t, "alice")
	bob := api.signup(t, "bob")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"src/a.go", "src/b.go", "img/logo.png"} {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	w := api.do(t, multipartRequest(t, "/api/upload-zip", alice.AccessToken, nil,
		formFile{field: "zipFile", name: "project.zip", body: buf.Bytes()}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var up struct {
		TaskID int64 `json:"taskId"`
	}
	decode(t, w, &up)
	api.tasks.Wait()

	w = api.do(t, jsonRequest(http.MethodGet, fmt.Sprintf("/api/tasks/%d", up.TaskID), alice.AccessToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var task map[string]any
	decode(t, w, &task)
	assert.Equal(t, "completed", task["status"])
	assert.EqualValues(t, 100, task["progress"])
	assert.EqualValues(t, 3, task["total_files"])
	assert.EqualValues(t, 3, task["completed_files"])

	w = api.do(t, jsonRequest(http.MethodGet, "/api/tasks/999", alice.AccessToken, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, jsonRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/tasks", alice.ID), alice.AccessToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []map[string]any
	decode(t, w, &tasks)
	assert.Len(t, tasks, 1)

	w = api.do(t, jsonRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/tasks", alice.ID), bob.AccessToken, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, multipartRequest(t, "/api/upload-zip", alice.AccessToken, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompareEndpoints(t *testing.T) {
	api := newAPI(t)

	w := api.do(t, jsonRequest(http.MethodPost, "/api/compare/code", "", map[string]string{
		"code1": "abc", "code2": "a b c",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"similarity":100}`, w.Body.String())

	img := gradientPNG(t)
	w = api.do(t, multipartRequest(t, "/api/compare/images", "", nil,
		formFile{field: "image1", name: "a.png", body: img},
		formFile{field: "image2", name: "b.png", body: img}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"similarity":100}`, w.Body.String())

	w = api.do(t, multipartRequest(t, "/api/compare/images", "", nil,
		formFile{field: "image1", name: "a.png", body: img},
		formFile{field: "image2", name: "b.txt", body: []byte("nope")}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExternalCheckAndReport(t *testing.T) {
	api := newAPI(t)
	alice := api.signup(t, "alice")
	img := gradientPNG(t)

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	}))
	defer remote.Close()

	w := api.do(t, multipartRequest(t, "/api/upload", alice.AccessToken,
		map[string]string{"resourceType": "image"},
		formFile{field: "file", name: "logo.png", body: img}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, jsonRequest(http.MethodPost, "/api/check-external-url", alice.AccessToken,
		map[string]string{"url": remote.URL + "/logo.png"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var check struct {
		Success bool `json:"success"`
		Result  struct {
			ID                   int64  `json:"id"`
			RiskLevel            string `json:"riskLevel"`
			Recommendation       string `json:"recommendation"`
			InfringementEvidence []struct {
				Similarity int `json:"similarity"`
			} `json:"infringementEvidence"`
		} `json:"result"`
	}
	decode(t, w, &check)
	assert.True(t, check.Success)
	assert.Equal(t, "high", check.Result.RiskLevel)
	assert.Equal(t, "high infringement risk", check.Result.Recommendation)
	require.Len(t, check.Result.InfringementEvidence, 1)
	assert.Equal(t, 100, check.Result.InfringementEvidence[0].Similarity)

	w = api.do(t, jsonRequest(http.MethodPost, "/api/generate-report", alice.AccessToken,
		map[string]any{"resultId": check.Result.ID}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep struct {
		ReportURL string `json:"reportUrl"`
	}
	decode(t, w, &rep)
	assert.Equal(t, fmt.Sprintf("http://localhost:4000/api/report/%d", check.Result.ID), rep.ReportURL)

	w = api.do(t, jsonRequest(http.MethodPost, "/api/generate-report", alice.AccessToken,
		map[string]any{"resultId": "424242"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/report/%d", check.Result.ID), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), fmt.Sprintf(`%d.pdf`, check.Result.ID))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = api.do(t, jsonRequest(http.MethodPost, "/api/check-external-url", alice.AccessToken,
		map[string]string{"url": "not a url"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	api := newAPI(t)

	tests := []struct {
		name           string
		origin         string
		requestHeaders string
		wantOrigin     string
	}{
		{"no request headers", "http://localhost:3000", "", "http://localhost:3000"},
		{"content type", "http://localhost:3000", "content-type", "http://localhost:3000"},
		{"bearer and content type", "http://localhost:3000", "authorization,content-type", "http://localhost:3000"},
		{"foreign origin", "http://evil.example", "content-type", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			if tt.requestHeaders != "" {
				req.Header.Set("Access-Control-Request-Headers", tt.requestHeaders)
			}
			w := api.do(t, req)

			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	api := newAPI(t)
	api.cfg.HTTPAddr = "127.0.0.1:0"

	srv := NewHTTPServer(api.cfg, logging.Nop(), nil, nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
