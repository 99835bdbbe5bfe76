// Package storage keeps uploaded asset bytes. Keys are flat names produced by
// filex.StoredFileName; backends may prefix them.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"strings"

	"github.com/ipsvault/ips/internal/server/config"
)

// Blob is a content store addressed by key.
type Blob interface {
	// Put stores r under key and returns the byte count and hex SHA-256.
	Put(ctx context.Context, key string, r io.Reader) (int64, string, error)
	// Open returns the content of key, or common.ErrorBlobMissing.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

var ErrInvalidKey = errors.New("invalid storage key")

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || filepath.Base(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// hashingWriter counts and hashes whatever passes through it.
type hashingWriter struct {
	h hash.Hash
	n int64
}

func newHashingWriter() *hashingWriter {
	return &hashingWriter{h: sha256.New()}
}

func (w *hashingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return w.h.Write(p)
}

func (w *hashingWriter) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// New builds the backend selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (Blob, error) {
	switch cfg.StorageBackend {
	case "", config.StorageLocal:
		return NewLocal(cfg.UploadDir)
	case config.StorageS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
