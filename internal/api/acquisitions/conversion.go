package acquisitions

import (
	"time"

	"github.com/DINO060/mediasink/internal/acquire"
	"github.com/DINO060/mediasink/internal/media"
	"github.com/google/uuid"
)

type (
	// Dto is the response representation of an acquisition task used
	// by endpoints that return tasks (e.g., list, get).
	Dto struct {
		ID             uuid.UUID `json:"id"`
		URL            string    `json:"url"`
		UserID         int64     `json:"user_id"`
		MediaKind      string    `json:"media_kind"`
		Status         string    `json:"status"`
		Progress       int       `json:"progress"`
		UpdatedAt      time.Time `json:"updated_at"`
		FailureKind    *string   `json:"failure_kind,omitempty"`
		FailureMessage *string   `json:"failure_message,omitempty"`
	}

	// ArtifactDto is the response representation of a recorded
	// acquisition, as returned by the lookup endpoint.
	ArtifactDto struct {
		ID          uuid.UUID `json:"id"`
		URL         string    `json:"url"`
		MediaKind   string    `json:"media_kind"`
		StorageKey  string    `json:"storage_key"`
		ByteSize    int64     `json:"byte_size"`
		ContentHash string    `json:"content_hash"`
		Title       *string   `json:"title,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// ResultDto is the payload of a completed acquisition.
	ResultDto struct {
		PublicURL   string         `json:"public_url"`
		StorageKey  string         `json:"storage_key"`
		ByteSize    int64          `json:"byte_size"`
		ContentHash string         `json:"content_hash"`
		FromCache   bool           `json:"from_cache"`
		Title       string         `json:"title,omitempty"`
		Duration    float64        `json:"duration_seconds,omitempty"`
		Resolution  string         `json:"resolution,omitempty"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}
)

// NewDto creates a Dto using the task model.
func NewDto(task *acquire.Task) *Dto {
	dto := &Dto{
		ID:        task.ID,
		URL:       task.Request.URL,
		UserID:    task.Request.UserID,
		MediaKind: task.Request.MediaKind,
		Status:    task.Status().String(),
		Progress:  task.Progress(),
		UpdatedAt: task.UpdatedAt(),
	}

	if cause := task.FailureCause(); cause != nil {
		kind := string(acquire.KindOf(cause))
		message := cause.Error()
		dto.FailureKind = &kind
		dto.FailureMessage = &message
	}

	return dto
}

func NewArtifactDto(artifact *media.Artifact) *ArtifactDto {
	dto := &ArtifactDto{
		ID:          artifact.ID,
		URL:         artifact.URL,
		MediaKind:   artifact.MediaKind,
		StorageKey:  artifact.StorageKey,
		ByteSize:    artifact.ByteSize,
		ContentHash: artifact.ContentHash,
		CreatedAt:   artifact.CreatedAt,
	}
	if artifact.Title.Valid {
		dto.Title = &artifact.Title.String
	}

	return dto
}

func NewResultDto(result *acquire.Result) *ResultDto {
	return &ResultDto{
		PublicURL:   result.PublicURL,
		StorageKey:  result.StorageKey,
		ByteSize:    result.ByteSize,
		ContentHash: result.ContentHash,
		FromCache:   result.FromCache,
		Title:       result.Info.Title,
		Duration:    result.Info.Duration,
		Resolution:  result.Info.Resolution,
		Metadata:    result.Metadata,
	}
}
