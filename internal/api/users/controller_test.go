package users_test

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DINO060/mediasink/internal/api/users"
	"github.com/DINO060/mediasink/internal/media"
	"github.com/DINO060/mediasink/internal/quota"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuotaStore struct {
	status     quota.Status
	statusErr  error
	registered map[int64]string
}

func (store *stubQuotaStore) CheckAndMaybeReset(userID int64) (quota.Status, error) {
	if store.statusErr != nil {
		return quota.Status{}, store.statusErr
	}

	return store.status, nil
}

func (store *stubQuotaStore) EnsureUser(userID int64, username string) error {
	if store.registered == nil {
		store.registered = make(map[int64]string)
	}
	store.registered[userID] = username
	return nil
}

type stubArtifactStore struct {
	artifacts []*media.Artifact
}

func (store *stubArtifactStore) ListForUser(userID int64, limit uint64) ([]*media.Artifact, error) {
	return store.artifacts, nil
}

func newTestRouter(quotaStore users.QuotaStore, artifactStore users.ArtifactStore) *echo.Echo {
	ec := echo.New()
	controller := users.New(validator.New(), quotaStore, artifactStore)
	controller.SetRoutes(ec.Group("/users"))
	return ec
}

func TestGetQuotaReportsRemainingAllowance(t *testing.T) {
	store := &stubQuotaStore{status: quota.Status{
		UsedMB:  250,
		LimitMB: 1000,
		Tier:    quota.TierFree,
		ResetAt: time.Now().Add(time.Hour),
	}}
	router := newTestRouter(store, &stubArtifactStore{})

	req := httptest.NewRequest(http.MethodGet, "/users/42/quota/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var dto users.QuotaDto
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, int64(42), dto.UserID)
	assert.Equal(t, "free", dto.Tier)
	assert.Equal(t, int64(250), dto.UsedMB)
	assert.Equal(t, int64(750), dto.RemainingMB)
}

func TestGetQuotaClampsOverspendToZeroRemaining(t *testing.T) {
	store := &stubQuotaStore{status: quota.Status{UsedMB: 1200, LimitMB: 1000, Tier: quota.TierFree}}
	router := newTestRouter(store, &stubArtifactStore{})

	req := httptest.NewRequest(http.MethodGet, "/users/1/quota/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var dto users.QuotaDto
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, int64(0), dto.RemainingMB)
}

func TestGetQuotaRejectsInvalidUserID(t *testing.T) {
	router := newTestRouter(&stubQuotaStore{}, &stubArtifactStore{})

	for _, id := range []string{"abc", "-4", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/users/"+id+"/quota/", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestGetQuotaUnknownUser(t *testing.T) {
	store := &stubQuotaStore{statusErr: fmt.Errorf("user 7: %w", quota.ErrUserNotFound)}
	router := newTestRouter(store, &stubArtifactStore{})

	req := httptest.NewRequest(http.MethodGet, "/users/7/quota/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetQuotaDatabaseFailure(t *testing.T) {
	store := &stubQuotaStore{statusErr: errors.New("connection refused")}
	router := newTestRouter(store, &stubArtifactStore{})

	req := httptest.NewRequest(http.MethodGet, "/users/7/quota/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "transport errors are not a missing user")
}

func TestRegisterCreatesUser(t *testing.T) {
	store := &stubQuotaStore{}
	router := newTestRouter(store, &stubArtifactStore{})

	req := httptest.NewRequest(http.MethodPut, "/users/42/", strings.NewReader(`{"username": "dino"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "dino", store.registered[42])
}

func TestRegisterRejectsMissingUsername(t *testing.T) {
	store := &stubQuotaStore{}
	router := newTestRouter(store, &stubArtifactStore{})

	req := httptest.NewRequest(http.MethodPut, "/users/42/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.registered)
}

func TestListArtifacts(t *testing.T) {
	artifacts := &stubArtifactStore{artifacts: []*media.Artifact{
		{
			ID:          uuid.New(),
			UserID:      42,
			URL:         "https://example.com/v",
			MediaKind:   "video",
			StorageKey:  "video/2026/08/30/abc",
			ByteSize:    2048,
			ContentHash: "abc",
			Title:       sql.NullString{String: "A Video", Valid: true},
		},
		{
			ID:          uuid.New(),
			UserID:      42,
			URL:         "https://example.com/a",
			MediaKind:   "audio",
			StorageKey:  "audio/2026/08/29/def",
			ByteSize:    1024,
			ContentHash: "def",
		},
	}}
	router := newTestRouter(&stubQuotaStore{}, artifacts)

	req := httptest.NewRequest(http.MethodGet, "/users/42/artifacts/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var dtos []users.ArtifactDto
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &dtos))
	require.Len(t, dtos, 2)
	require.NotNil(t, dtos[0].Title)
	assert.Equal(t, "A Video", *dtos[0].Title)
	assert.Nil(t, dtos[1].Title, "artifacts without a title omit it")
}
