package similarity

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const hashBits = 64

var ErrBadHash = errors.New("malformed image hash")

// Fingerprint holds the difference and perception hashes of one image.
type Fingerprint struct {
	DHash *goimagehash.ImageHash
	PHash *goimagehash.ImageHash
}

// FingerprintImage hashes a decoded image.
func FingerprintImage(img image.Image) (Fingerprint, error) {
	d, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("dhash: %w", err)
	}
	p, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("phash: %w", err)
	}
	return Fingerprint{DHash: d, PHash: p}, nil
}

// FingerprintReader decodes r (png, jpeg, gif, bmp or webp) and hashes it.
func FingerprintReader(r io.Reader) (Fingerprint, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("decode image: %w", err)
	}
	return FingerprintImage(img)
}

func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()
	return FingerprintReader(f)
}

// Images scores two fingerprints: each hash contributes
// 100 - distance*100/64 and the two are averaged.
func Images(a, b Fingerprint) (int, error) {
	dd, err := a.DHash.Distance(b.DHash)
	if err != nil {
		return 0, err
	}
	pd, err := a.PHash.Distance(b.PHash)
	if err != nil {
		return 0, err
	}
	score := (hashScore(dd) + hashScore(pd)) / 2
	return int(math.Round(score)), nil
}

func hashScore(distance int) float64 {
	return 100 - float64(distance)*100/hashBits
}

// CompareFiles fingerprints both files and scores them.
func CompareFiles(pathA, pathB string) (int, error) {
	a, err := FingerprintFile(pathA)
	if err != nil {
		return 0, err
	}
	b, err := FingerprintFile(pathB)
	if err != nil {
		return 0, err
	}
	return Images(a, b)
}

// EncodeHash renders h as "<kind>:<16 hex digits>" for storage.
func EncodeHash(h *goimagehash.ImageHash) string {
	if h == nil {
		return ""
	}
	prefix := "d"
	if h.GetKind() == goimagehash.PHash {
		prefix = "p"
	}
	return fmt.Sprintf("%s:%016x", prefix, h.GetHash())
}

// DecodeHash parses a value produced by EncodeHash.
func DecodeHash(s string) (*goimagehash.ImageHash, error) {
	prefix, hexPart, ok := strings.Cut(s, ":")
	if !ok || len(hexPart) != 16 {
		return nil, fmt.Errorf("%w: %q", ErrBadHash, s)
	}
	var kind goimagehash.Kind
	switch prefix {
	case "d":
		kind = goimagehash.DHash
	case "p":
		kind = goimagehash.PHash
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadHash, s)
	}
	v, err := strconv.ParseUint(hexPart, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadHash, s)
	}
	return goimagehash.NewImageHash(v, kind), nil
}

// Encode returns the stored (dhash, phash) strings of f.
func (f Fingerprint) Encode() (string, string) {
	return EncodeHash(f.DHash), EncodeHash(f.PHash)
}

// DecodeFingerprint rebuilds a fingerprint from stored strings.
func DecodeFingerprint(dhash, phash string) (Fingerprint, error) {
	d, err := DecodeHash(dhash)
	if err != nil {
		return Fingerprint{}, err
	}
	p, err := DecodeHash(phash)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{DHash: d, PHash: p}, nil
}
