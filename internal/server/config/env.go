package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvFile is the dotenv file loaded (when present) before reading IPS_* variables.
const EnvFile = ".env"

// parseEnv overlays IPS_* environment variables. Values from .env never
// override variables already set in the process environment.
func parseEnv(config *Config) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Errorf("load %s: %w", EnvFile, err))
	}

	envString(&config.HTTPAddr, "IPS_HTTP_ADDR")
	envString(&config.DatabaseDSN, "IPS_DATABASE_DSN")
	envString(&config.UploadDir, "IPS_UPLOAD_DIR")
	envString(&config.TempDir, "IPS_TEMP_DIR")
	envString(&config.ReportDir, "IPS_REPORT_DIR")
	envString(&config.StaticDir, "IPS_STATIC_DIR")
	envString(&config.PublicBaseURL, "IPS_PUBLIC_BASE_URL")
	envString(&config.CORSOrigin, "IPS_CORS_ORIGIN")
	envString(&config.SecretKey, "IPS_SECRET_KEY")
	envString(&config.LogLevel, "IPS_LOG_LEVEL")
	envString(&config.StorageBackend, "IPS_STORAGE_BACKEND")
	envString(&config.S3RootUser, "IPS_S3_ROOT_USER")
	envString(&config.S3RootPassword, "IPS_S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "IPS_S3_BUCKET")
	envString(&config.S3Region, "IPS_S3_REGION")
	envString(&config.S3BaseEndpoint, "IPS_S3_BASE_ENDPOINT")

	envDuration(&config.AccessTokenValidityDuration, "IPS_ACCESS_TOKEN_VALIDITY")
	envDuration(&config.RefreshTokenValidityDuration, "IPS_REFRESH_TOKEN_VALIDITY")
	envDuration(&config.DownloadTimeout, "IPS_DOWNLOAD_TIMEOUT")

	envInt(&config.ScanWorkers, "IPS_SCAN_WORKERS")
	envInt(&config.MaxAssetFiles, "IPS_MAX_ASSET_FILES")
	envInt(&config.SimilarityThreshold, "IPS_SIMILARITY_THRESHOLD")

	if v, ok := os.LookupEnv("IPS_MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(fmt.Errorf("IPS_MAX_UPLOAD_BYTES: %w", err))
		}
		config.MaxUploadBytes = n
	}

	if v, ok := os.LookupEnv("IPS_ALLOW_PRIVATE_FETCH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("IPS_ALLOW_PRIVATE_FETCH: %w", err))
		}
		config.AllowPrivateFetch = b
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = n
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = d
}
