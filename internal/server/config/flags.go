package config

import (
	"flag"
	"os"
	"time"

	"github.com/ipsvault/ips/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":4000")
//	-d string   SQLite database path
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-u string   upload directory
//	-l string   log level
//	-w int      zip scan workers
//	-b string   storage backend (local|s3)
//
// Only these flags are read; os.Args is filtered with flagx.FilterArgs so the
// -c/-config flag handled by parseJson does not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-r", "-u", "-l", "-w", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database path")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.UploadDir, "u", config.UploadDir, "upload directory")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug|info|warn|error)")
	fs.IntVar(&config.ScanWorkers, "w", config.ScanWorkers, "zip scan workers")
	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend (local|s3)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
