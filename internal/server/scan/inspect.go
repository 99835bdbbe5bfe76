package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/ipsvault/ips/internal/filex"
	"github.com/ipsvault/ips/internal/server/similarity"
)

// FileReport is what the scanner learns about one extracted file.
type FileReport struct {
	Path        string
	SHA256      string
	Fingerprint *similarity.Fingerprint
}

// Inspect hashes the file at path and, for image names that decode,
// computes its perceptual fingerprint. Undecodable images are reported
// without a fingerprint.
func Inspect(path string) (FileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileReport{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return FileReport{}, err
	}
	rep := FileReport{Path: path, SHA256: hex.EncodeToString(h.Sum(nil))}

	if filex.IsImageName(path) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return FileReport{}, err
		}
		if fp, err := similarity.FingerprintReader(f); err == nil {
			rep.Fingerprint = &fp
		}
	}
	return rep, nil
}
