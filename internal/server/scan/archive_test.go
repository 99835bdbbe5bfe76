package scan

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if !strings.HasSuffix(name, "/") {
			_, err = w.Write([]byte(body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if !errors.Is(err, zip.ErrInsecurePath) {
		require.NoError(t, err)
	}
	return zr
}

func TestCountFiles(t *testing.T) {
	zr := buildZip(t, map[string]string{
		"src/":          "",
		"src/main.go":   "package main",
		"src/util.go":   "package main",
		"assets/":       "",
		"assets/a.png":  "png",
		"README.md":     "# hi",
		"empty-folder/": "",
	})
	assert.Equal(t, 4, CountFiles(zr))
}

func TestExtract(t *testing.T) {
	zr := buildZip(t, map[string]string{
		"src/":         "",
		"src/main.go":  "package main",
		"deep/a/b.txt": "b",
	})
	dest := filepath.Join(t.TempDir(), "job")

	files, err := Extract(context.Background(), zr, dest, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep/a/b.txt", "src/main.go"}, files)

	got, err := os.ReadFile(filepath.Join(dest, "src", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(got))
}

func TestExtract_RejectsZipSlip(t *testing.T) {
	zr := buildZip(t, map[string]string{"../../evil.sh": "rm -rf /"})
	parent := t.TempDir()
	dest := filepath.Join(parent, "job")

	_, err := Extract(context.Background(), zr, dest, 0)
	assert.ErrorIs(t, err, ErrIllegalPath)
	_, statErr := os.Stat(filepath.Join(parent, "evil.sh"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtract_SizeLimit(t *testing.T) {
	zr := buildZip(t, map[string]string{"big.bin": strings.Repeat("x", 100)})

	_, err := Extract(context.Background(), zr, t.TempDir(), 10)
	assert.ErrorIs(t, err, ErrArchiveLarge)
}

func TestExtract_Cancelled(t *testing.T) {
	zr := buildZip(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, zr, t.TempDir(), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
