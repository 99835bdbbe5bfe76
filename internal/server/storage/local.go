package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/filex"
)

// Local stores blobs as files under a root directory.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (l *Local) Root() string { return l.root }

// Path returns the filesystem path of key.
func (l *Local) Path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, key), nil
}

// Put writes into a temp file first and renames it, so readers never see a
// partial blob.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (int64, string, error) {
	dst, err := l.Path(key)
	if err != nil {
		return 0, "", err
	}

	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return 0, "", fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hw := newHashingWriter()
	_, err = io.Copy(io.MultiWriter(tmp, hw), &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", fmt.Errorf("write blob: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return 0, "", fmt.Errorf("rename blob: %w", err)
	}
	return hw.n, hw.Sum(), nil
}

func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := l.Path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorBlobMissing
		}
		return nil, err
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrorBlobMissing
		}
		return err
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.Path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
