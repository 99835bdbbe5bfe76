package services

import (
	"context"

	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/models"
	"github.com/ipsvault/ips/internal/server/repositories/resources"
	"github.com/ipsvault/ips/internal/server/similarity"
	"github.com/ipsvault/ips/internal/server/storage"
)

// libraryImage is a stored image resource together with its fingerprint.
type libraryImage struct {
	resource    models.Resource
	fingerprint similarity.Fingerprint
}

// imageMatch is a library image that resembles the inspected content.
type imageMatch struct {
	resource   models.Resource
	similarity int
}

// loadImageLibrary fingerprints every image resource. Stored hashes are used
// when present; otherwise the blob is decoded. Resources that cannot be
// fingerprinted are skipped.
func loadImageLibrary(ctx context.Context, repo resources.Repository, blob storage.Blob, logger logging.Logger) ([]libraryImage, error) {
	images, err := repo.ListImages(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]libraryImage, 0, len(images))
	for _, res := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fp, err := similarity.DecodeFingerprint(res.DHash, res.PHash)
		if err != nil {
			fp, err = fingerprintBlob(ctx, blob, res.FilePath)
			if err != nil {
				logger.Debug(ctx, "skipping library image", "resource_id", res.ID, "error", err)
				continue
			}
		}
		out = append(out, libraryImage{resource: res, fingerprint: fp})
	}
	return out, nil
}

func fingerprintBlob(ctx context.Context, blob storage.Blob, key string) (similarity.Fingerprint, error) {
	rc, err := blob.Open(ctx, key)
	if err != nil {
		return similarity.Fingerprint{}, err
	}
	defer rc.Close()
	return similarity.FingerprintReader(rc)
}

// matchImages returns library entries scoring strictly above threshold.
func matchImages(fp similarity.Fingerprint, library []libraryImage, threshold int) []imageMatch {
	var out []imageMatch
	for _, li := range library {
		score, err := similarity.Images(fp, li.fingerprint)
		if err != nil {
			continue
		}
		if score > threshold {
			out = append(out, imageMatch{resource: li.resource, similarity: score})
		}
	}
	return out
}
