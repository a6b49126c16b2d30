// The media package persists a record of every successfully acquired
// artifact. These rows are the durable audit trail behind the content
// cache: the cache entry may lapse, but the record of what was
// fetched, for whom, and where it landed in the object store remains.
package media

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DINO060/mediasink/internal/database"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var (
	log = logger.Get("MediaStore")

	ErrArtifactNotFound = errors.New("media artifact does not exist")
)

type (
	// Artifact is one acquired media item as recorded in the
	// database. Metadata carries the raw bag the source handler
	// extracted, beyond the promoted columns.
	Artifact struct {
		ID              uuid.UUID                                `db:"id"`
		UserID          int64                                    `db:"user_id"`
		URL             string                                   `db:"url"`
		URLFingerprint  string                                   `db:"url_fingerprint"`
		MediaKind       string                                   `db:"media_kind"`
		StorageKey      string                                   `db:"storage_key"`
		ByteSize        int64                                    `db:"byte_size"`
		ContentHash     string                                   `db:"content_hash"`
		Title           sql.NullString                           `db:"title"`
		Description     sql.NullString                           `db:"description"`
		DurationSeconds sql.NullFloat64                          `db:"duration_seconds"`
		Resolution      sql.NullString                           `db:"resolution"`
		Metadata        database.JsonColumn[map[string]any]      `db:"metadata"`
		CachedAt        time.Time                                `db:"cached_at"`
		CacheExpiresAt  time.Time                                `db:"cache_expires_at"`
		CreatedAt       time.Time                                `db:"created_at"`
	}

	Store struct {
		db database.Queryable
	}
)

func NewStore(db database.Queryable) *Store {
	return &Store{db: db}
}

// Save inserts the artifact record. The caller supplies the cache
// window (cached_at/cache_expires_at) mirroring the cache entry that
// was written alongside this record.
func (store *Store) Save(artifact *Artifact) error {
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	if !artifact.CacheExpiresAt.After(artifact.CachedAt) {
		return fmt.Errorf("artifact cache window is invalid: expires_at must be after cached_at")
	}

	if _, err := store.db.Exec(`
		INSERT INTO media_artifacts(
			id, user_id, url, url_fingerprint, media_kind, storage_key,
			byte_size, content_hash, title, description, duration_seconds,
			resolution, metadata, cached_at, cache_expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		artifact.ID, artifact.UserID, artifact.URL, artifact.URLFingerprint,
		artifact.MediaKind, artifact.StorageKey, artifact.ByteSize,
		artifact.ContentHash, artifact.Title, artifact.Description,
		artifact.DurationSeconds, artifact.Resolution, artifact.Metadata,
		artifact.CachedAt, artifact.CacheExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to insert media artifact: %w", err)
	}

	log.Emit(logger.NEW, "Recorded artifact %s (key '%s')\n", artifact.ID, artifact.StorageKey)
	return nil
}

// LatestByFingerprint returns the most recent artifact recorded for a
// URL fingerprint, or ErrArtifactNotFound.
func (store *Store) LatestByFingerprint(fingerprint string) (*Artifact, error) {
	query, args, err := selectArtifactBuilder().
		Where(squirrel.Eq{"url_fingerprint": fingerprint}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct artifact query: %w", err)
	}

	var artifact Artifact
	if err := store.db.Get(&artifact, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}

	return &artifact, nil
}

// ListForUser returns the users artifacts, newest first.
func (store *Store) ListForUser(userID int64, limit uint64) ([]*Artifact, error) {
	query, args, err := selectArtifactBuilder().
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct artifact list query: %w", err)
	}

	var artifacts []*Artifact
	if err := store.db.Select(&artifacts, query, args...); err != nil {
		return nil, err
	}

	return artifacts, nil
}

func selectArtifactBuilder() squirrel.SelectBuilder {
	return squirrel.
		Select(
			"id", "user_id", "url", "url_fingerprint", "media_kind",
			"storage_key", "byte_size", "content_hash", "title",
			"description", "duration_seconds", "resolution", "metadata",
			"cached_at", "cache_expires_at", "created_at",
		).
		From("media_artifacts").
		PlaceholderFormat(squirrel.Dollar)
}
