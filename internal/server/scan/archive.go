// Package scan unpacks uploaded archives and inspects their files.
package scan

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrIllegalPath  = errors.New("illegal file path in archive")
	ErrArchiveLarge = errors.New("archive expands beyond size limit")
)

// CountFiles returns the number of non-directory entries.
func CountFiles(zr *zip.Reader) int {
	n := 0
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			n++
		}
	}
	return n
}

// Extract writes every file entry of zr below dest and returns the relative
// slash-separated paths written, sorted. Entries escaping dest are rejected.
// maxBytes (when positive) caps the total uncompressed size.
func Extract(ctx context.Context, zr *zip.Reader, dest string, maxBytes int64) ([]string, error) {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return nil, err
	}
	root := filepath.Clean(dest) + string(os.PathSeparator)

	seen := make(map[string]struct{}, len(zr.File))
	var written int64

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dest, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(path, root) {
			return nil, fmt.Errorf("%w: %s", ErrIllegalPath, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o750); err != nil {
				return nil, err
			}
			continue
		}

		var budget int64 = -1
		if maxBytes > 0 {
			budget = maxBytes - written
		}
		n, err := extractFile(f, path, budget)
		if err != nil {
			return nil, err
		}
		written += n

		rel, err := filepath.Rel(dest, path)
		if err != nil {
			return nil, err
		}
		seen[filepath.ToSlash(rel)] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for rel := range seen {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

// extractFile copies one entry to path. A negative budget means unlimited.
func extractFile(f *zip.File, path string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}

	var src io.Reader = rc
	if budget >= 0 {
		src = io.LimitReader(rc, budget+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if budget >= 0 && n > budget {
		return 0, ErrArchiveLarge
	}
	return n, nil
}
