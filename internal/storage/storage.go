// The storage package owns the content-addressed object store that
// is the long-lived source of truth for fetched bytes. Object keys
// are deterministic - date-partitioned plus the SHA-256 of the
// content - so repeated uploads of identical bytes collide on the
// same key, deduplicating storage independently of the content cache.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"
)

type (
	// Store is the object store contract consumed by the acquisition
	// pipeline and the API layer.
	Store interface {
		// Upload persists the file at localPath under a deterministic
		// key derived from the media kind, the current date and the
		// contents SHA-256, returning that key.
		Upload(ctx context.Context, localPath string, mediaKind string) (string, error)

		// Exists reports whether an object is present under key.
		Exists(ctx context.Context, key string) (bool, error)

		// Retrieve downloads the object under key to a file within
		// destDir and returns its local path.
		Retrieve(ctx context.Context, key string, destDir string) (string, error)

		// Delete removes the object under key, reporting whether an
		// object was actually removed.
		Delete(ctx context.Context, key string) (bool, error)

		// TemporaryAccessURL returns a time-limited presigned URL for
		// the object under key.
		TemporaryAccessURL(ctx context.Context, key string, expiry time.Duration) (string, error)

		// PublicURL returns the URL clients should be handed for the
		// object: a CDN-prefixed path when a CDN is configured,
		// otherwise a presigned URL with the provided expiry.
		PublicURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	}
)

// ObjectKey builds the deterministic object key
// '{media_kind}/{YYYY}/{MM}/{DD}/{content_sha256}'.
func ObjectKey(mediaKind string, at time.Time, contentHash string) string {
	return fmt.Sprintf("%s/%s/%s", mediaKind, at.UTC().Format("2006/01/02"), contentHash)
}

// HashFile computes the SHA-256 digest of the file at path, streamed
// so arbitrarily large artifacts do not need to fit in memory.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open '%s' for hashing: %w", path, err)
	}
	defer file.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return "", fmt.Errorf("failed to hash '%s': %w", path, err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
