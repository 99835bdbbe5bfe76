// Package config handles configuration for the ips server, layering
// defaults, a JSON file, the environment and command-line flags.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds runtime settings for the ips server.
//
// Fields:
//   - HTTPAddr: bind address of the REST API.
//   - DatabaseDSN: SQLite file path (or a "file:" DSN).
//   - UploadDir / TempDir / ReportDir: local directories for blobs, zip extraction and PDFs.
//   - StaticDir: built front end served at "/" when present.
//   - PublicBaseURL: prefix used in verify and report URLs.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use test defaults in prod.
//   - StorageBackend: "local" or "s3"; S3* fields configure the latter.
//   - AllowPrivateFetch: let external checks reach loopback and private addresses.
type Config struct {
	HTTPAddr                     string
	DatabaseDSN                  string
	UploadDir                    string
	TempDir                      string
	ReportDir                    string
	StaticDir                    string
	PublicBaseURL                string
	CORSOrigin                   string
	SecretKey                    string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
	LogLevel                     string
	StorageBackend               string
	S3RootUser                   string
	S3RootPassword               string
	S3Bucket                     string
	S3Region                     string
	S3BaseEndpoint               string
	ScanWorkers                  int
	MaxAssetFiles                int
	SimilarityThreshold          int
	MaxUploadBytes               int64
	DownloadTimeout              time.Duration
	AllowPrivateFetch            bool
}

// LoadDefaults populates Config with development defaults.
// NOTE: SecretKey and the S3 credentials must be overridden in production.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":4000"
	c.DatabaseDSN = "ips.db"
	c.UploadDir = "resource"
	c.TempDir = filepath.Join(os.TempDir(), "ips")
	c.ReportDir = "reports"
	c.StaticDir = "build"
	c.PublicBaseURL = "http://localhost:4000"
	c.CORSOrigin = "http://localhost:3000"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 24 * time.Hour
	c.LogLevel = "info"
	c.StorageBackend = StorageLocal
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "ips"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.ScanWorkers = 4
	c.MaxAssetFiles = 10
	c.SimilarityThreshold = 50
	c.MaxUploadBytes = 64 << 20
	c.DownloadTimeout = 30 * time.Second
}

// LoadEnvConfig layers defaults, the JSON file and the environment, leaving
// command-line parsing to the caller.
func LoadEnvConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	return cfg
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line flags.
func LoadConfig() *Config {
	cfg := LoadEnvConfig()
	parseFlags(cfg)
	return cfg
}
