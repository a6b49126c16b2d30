package users

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DINO060/mediasink/internal/media"
	"github.com/DINO060/mediasink/internal/quota"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	// QuotaDto reports a user's remaining daily allowance.
	QuotaDto struct {
		UserID      int64     `json:"user_id"`
		Tier        string    `json:"tier"`
		UsedMB      int64     `json:"used_mb"`
		LimitMB     int64     `json:"limit_mb"`
		RemainingMB int64     `json:"remaining_mb"`
		ResetAt     time.Time `json:"reset_at"`
	}

	// ArtifactDto is one previously acquired item in a user's history.
	ArtifactDto struct {
		ID          string    `json:"id"`
		URL         string    `json:"url"`
		MediaKind   string    `json:"media_kind"`
		StorageKey  string    `json:"storage_key"`
		ByteSize    int64     `json:"byte_size"`
		ContentHash string    `json:"content_hash"`
		Title       *string   `json:"title"`
		CreatedAt   time.Time `json:"created_at"`
	}

	RegisterRequest struct {
		Username string `json:"username" validate:"required,min=1,max=255"`
	}

	// QuotaStore is where this controller reads usage from and
	// registers new users; this is typically the quota ledger.
	QuotaStore interface {
		CheckAndMaybeReset(userID int64) (quota.Status, error)
		EnsureUser(userID int64, username string) error
	}

	// ArtifactStore supplies a user's acquisition history.
	ArtifactStore interface {
		ListForUser(userID int64, limit uint64) ([]*media.Artifact, error)
	}

	Controller struct {
		validate  *validator.Validate
		store     QuotaStore
		artifacts ArtifactStore
	}
)

const historyPageSize = 50

func New(validate *validator.Validate, store QuotaStore, artifacts ArtifactStore) *Controller {
	return &Controller{validate: validate, store: store, artifacts: artifacts}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.PUT("/:id/", controller.register)
	eg.GET("/:id/quota/", controller.getQuota)
	eg.GET("/:id/artifacts/", controller.listArtifacts)
}

// register creates the user row if it does not already exist.
// Registration is idempotent so callers may repeat it on every
// interaction.
func (controller *Controller) register(ec echo.Context) error {
	id, err := userIDParam(ec)
	if err != nil {
		return err
	}

	var request RegisterRequest
	if err := ec.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := controller.validate.Struct(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := controller.store.EnsureUser(id, request.Username); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to register user %d: %s", id, err.Error()))
	}

	return ec.NoContent(http.StatusNoContent)
}

// getQuota reports the current usage of the user with the 'id' path
// param. Reading the quota applies the same lazy window reset as an
// acquisition would.
func (controller *Controller) getQuota(ec echo.Context) error {
	id, err := userIDParam(ec)
	if err != nil {
		return err
	}

	status, err := controller.store.CheckAndMaybeReset(id)
	if err != nil {
		if errors.Is(err, quota.ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("User %d does not exist", id))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to read quota for user %d: %s", id, err.Error()))
	}

	remaining := status.LimitMB - status.UsedMB
	if remaining < 0 {
		remaining = 0
	}

	return ec.JSON(http.StatusOK, QuotaDto{
		UserID:      id,
		Tier:        string(status.Tier),
		UsedMB:      status.UsedMB,
		LimitMB:     status.LimitMB,
		RemainingMB: remaining,
		ResetAt:     status.ResetAt,
	})
}

// listArtifacts returns the user's most recent acquisitions, newest
// first.
func (controller *Controller) listArtifacts(ec echo.Context) error {
	id, err := userIDParam(ec)
	if err != nil {
		return err
	}

	artifacts, err := controller.artifacts.ListForUser(id, historyPageSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("Failed to list artifacts for user %d: %s", id, err.Error()))
	}

	dtos := make([]ArtifactDto, len(artifacts))
	for k, artifact := range artifacts {
		dtos[k] = newArtifactDto(artifact)
	}
	return ec.JSON(http.StatusOK, dtos)
}

func newArtifactDto(artifact *media.Artifact) ArtifactDto {
	dto := ArtifactDto{
		ID:          artifact.ID.String(),
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

func userIDParam(ec echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ec.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "User ID is not a valid positive integer")
	}

	return id, nil
}
