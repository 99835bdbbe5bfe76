package config

import (
	"encoding/json"
	"os"

	"github.com/ipsvault/ips/internal/flagx"
	"github.com/ipsvault/ips/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointer fields
// distinguish "absent" from zero so a partial file only overrides what it names.
type JsonConfig struct {
	HTTPAddr                     *string         `json:"http_addr"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	UploadDir                    *string         `json:"upload_dir"`
	TempDir                      *string         `json:"temp_dir"`
	ReportDir                    *string         `json:"report_dir"`
	StaticDir                    *string         `json:"static_dir"`
	PublicBaseURL                *string         `json:"public_base_url"`
	CORSOrigin                   *string         `json:"cors_origin"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	LogLevel                     *string         `json:"log_level"`
	StorageBackend               *string         `json:"storage_backend"`
	S3RootUser                   *string         `json:"s3_root_user"`
	S3RootPassword               *string         `json:"s3_root_password"`
	S3Bucket                     *string         `json:"s3_bucket"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
	ScanWorkers                  *int            `json:"scan_workers"`
	MaxAssetFiles                *int            `json:"max_asset_files"`
	SimilarityThreshold          *int            `json:"similarity_threshold"`
	MaxUploadBytes               *int64          `json:"max_upload_bytes"`
	DownloadTimeout              *timex.Duration `json:"download_timeout"`
	AllowPrivateFetch            *bool           `json:"allow_private_fetch"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// IPS_CONFIG). Unreadable or malformed files panic: startup cannot continue
// with a half-applied configuration.
func parseJson(config *Config) {
	path := flagx.ConfigPath()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.UploadDir, c.UploadDir)
	setString(&config.TempDir, c.TempDir)
	setString(&config.ReportDir, c.ReportDir)
	setString(&config.StaticDir, c.StaticDir)
	setString(&config.PublicBaseURL, c.PublicBaseURL)
	setString(&config.CORSOrigin, c.CORSOrigin)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.DownloadTimeout != nil {
		config.DownloadTimeout = c.DownloadTimeout.Duration
	}
	if c.ScanWorkers != nil {
		config.ScanWorkers = *c.ScanWorkers
	}
	if c.MaxAssetFiles != nil {
		config.MaxAssetFiles = *c.MaxAssetFiles
	}
	if c.SimilarityThreshold != nil {
		config.SimilarityThreshold = *c.SimilarityThreshold
	}
	if c.MaxUploadBytes != nil {
		config.MaxUploadBytes = *c.MaxUploadBytes
	}
	if c.AllowPrivateFetch != nil {
		config.AllowPrivateFetch = *c.AllowPrivateFetch
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
