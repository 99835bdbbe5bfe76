// Package filex contains small filesystem helpers shared by storage and scanning.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	storedBaseMaxLen = 20
	storedExtMaxLen  = 16
)

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
}

// EnsureDir creates dir (and parents) and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}

	return abs, nil
}

// StoredFileName turns an uploaded name into "<base up to 20 runes>-<8 hex of uuid><ext>".
// Extensions longer than 16 bytes are dropped.
func StoredFileName(original string) string {
	original = filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(original, ext)
	if len(ext) > storedExtMaxLen || strings.ContainsRune(ext, 0) {
		ext = ""
	}

	r := []rune(base)
	if len(r) > storedBaseMaxLen {
		r = r[:storedBaseMaxLen]
	}
	base = strings.Map(func(c rune) rune {
		if c == '/' || c == os.PathSeparator || c == 0 {
			return '_'
		}
		return c
	}, string(r))
	if base == "" || base == "." {
		base = "file"
	}

	return fmt.Sprintf("%s-%s%s", base, uuid.NewString()[:8], ext)
}

// IsImageName reports whether the extension is one rendered inline as an image.
func IsImageName(name string) bool {
	_, ok := imageExts[strings.ToLower(filepath.Ext(name))]
	return ok
}
