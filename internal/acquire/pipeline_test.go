package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DINO060/mediasink/internal/cache"
	"github.com/DINO060/mediasink/internal/media"
	"github.com/DINO060/mediasink/internal/plugin"
	"github.com/DINO060/mediasink/internal/quota"
	"github.com/DINO060/mediasink/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger is an in-memory stand-in for the SQL-backed quota
// ledger, accruing usage the same way (whole megabytes, rounded up).
type fakeLedger struct {
	tier    quota.Tier
	usedMB  int64
	limitMB int64
	checks  int
	failOn  error
}

func (ledger *fakeLedger) CheckAndMaybeReset(_ int64) (quota.Status, error) {
	ledger.checks++
	if ledger.failOn != nil {
		return quota.Status{}, ledger.failOn
	}

	return quota.Status{UsedMB: ledger.usedMB, LimitMB: ledger.limitMB, Tier: ledger.tier, ResetAt: time.Now().Add(time.Hour)}, nil
}

func (ledger *fakeLedger) AddUsage(_ int64, byteCount int64) error {
	ledger.usedMB += quota.MegabytesFromBytes(byteCount)
	return nil
}

// fakeObjectStore mimics the content-addressed minio store: uploads
// are keyed on the file's hash so identical content converges on the
// same key.
type fakeObjectStore struct {
	objects map[string][]byte
	uploads int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (store *fakeObjectStore) Upload(_ context.Context, localPath string, mediaKind string) (string, error) {
	hash, err := storage.HashFile(localPath)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}

	key := storage.ObjectKey(mediaKind, time.Now(), hash)
	store.objects[key] = content
	store.uploads++
	return key, nil
}

func (store *fakeObjectStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := store.objects[key]
	return ok, nil
}

func (store *fakeObjectStore) PublicURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.test/" + key, nil
}

type fakeRecorder struct {
	saved []*media.Artifact
}

func (recorder *fakeRecorder) Save(artifact *media.Artifact) error {
	recorder.saved = append(recorder.saved, artifact)
	return nil
}

// countingHandler is a controllable source handler that writes a
// fixed payload in to the scratch dir on fetch.
type countingHandler struct {
	metadata     plugin.Metadata
	metadataErr  error
	fetchErr     error
	fetchContent []byte
	extractCalls int
	fetchCalls   int
}

func (handler *countingHandler) Info() plugin.Info {
	return plugin.Info{Name: "counting", Version: "0.0.0", Priority: 10}
}

func (handler *countingHandler) CanHandle(_ string) bool { return true }

func (handler *countingHandler) ExtractInfo(_ context.Context, _ string) (plugin.Metadata, error) {
	handler.extractCalls++
	return handler.metadata, handler.metadataErr
}

func (handler *countingHandler) Fetch(_ context.Context, _ string, destDir string, _ plugin.Options) (plugin.FetchResult, error) {
	handler.fetchCalls++
	if handler.fetchErr != nil {
		return plugin.FetchResult{}, handler.fetchErr
	}

	path := filepath.Join(destDir, "artifact.mp4")
	if err := os.WriteFile(path, handler.fetchContent, 0o600); err != nil {
		return plugin.FetchResult{}, err
	}

	return plugin.FetchResult{Success: true, LocalPath: path}, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	cache    *cache.Cache
	ledger   *fakeLedger
	store    *fakeObjectStore
	recorder *fakeRecorder
	handler  *countingHandler
	registry *plugin.Registry
}

func newPipelineFixture(t *testing.T, handler *countingHandler, ledger *fakeLedger) *pipelineFixture {
	t.Helper()

	registry := plugin.NewRegistry()
	if handler != nil {
		require.Nil(t, registry.Register(handler))
	}

	contentCache := cache.New(cache.NewMemoryProvider())
	store := newFakeObjectStore()
	recorder := &fakeRecorder{}

	config := PipelineConfig{
		TempDir:            t.TempDir(),
		CacheTTL:           time.Hour * 24,
		PrivilegedCacheTTL: time.Hour * 24 * 7,
		PublicURLExpiry:    time.Hour,
	}

	return &pipelineFixture{
		pipeline: NewPipeline(config, contentCache, ledger, registry, store, recorder, nil),
		cache:    contentCache,
		ledger:   ledger,
		store:    store,
		recorder: recorder,
		handler:  handler,
		registry: registry,
	}
}

func newPipelineTask(t *testing.T, url string) *Task {
	t.Helper()

	fingerprint, err := Fingerprint(url)
	require.Nil(t, err)

	request := Request{URL: url, UserID: 7, MediaKind: "video", fingerprint: fingerprint}
	task := NewTask(request)
	task.claim()
	return task
}

func defaultHandler() *countingHandler {
	return &countingHandler{
		metadata:     plugin.Metadata{"title": "A Video", "duration": 12.5, "resolution": "1080p"},
		fetchContent: []byte("after a while, crocodile"),
	}
}

func TestPipelineFullAcquisition(t *testing.T) {
	handler := defaultHandler()
	ledger := &fakeLedger{tier: quota.TierFree, usedMB: 0, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	task := newPipelineTask(t, "https://example.com/watch?v=1")
	result, err := fixture.pipeline.Execute(context.Background(), task)
	require.Nil(t, err)

	assert.False(t, result.FromCache)
	assert.Equal(t, int64(len(handler.fetchContent)), result.ByteSize)
	assert.Equal(t, "A Video", result.Info.Title)
	assert.Equal(t, "https://cdn.test/"+result.StorageKey, result.PublicURL)
	assert.NotEmpty(t, result.ContentHash)

	// Object persisted, usage accrued, artifact recorded, cache set
	exists, _ := fixture.store.Exists(context.Background(), result.StorageKey)
	assert.True(t, exists)
	assert.Equal(t, int64(1), ledger.usedMB, "sub-megabyte artifacts accrue a whole megabyte")
	require.Len(t, fixture.recorder.saved, 1)
	assert.Equal(t, task.Request.Fingerprint(), fixture.recorder.saved[0].URLFingerprint)

	cached, err := fixture.cache.Exists(context.Background(), "downloads", task.Request.Fingerprint())
	assert.Nil(t, err)
	assert.True(t, cached)

	assert.Equal(t, 100, task.Progress())
}

func TestPipelineRepeatAcquisitionIsCacheHit(t *testing.T) {
	handler := defaultHandler()
	ledger := &fakeLedger{tier: quota.TierFree, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	first, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.Nil(t, err)

	// Trivially different spelling of the same URL
	second, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "HTTPS://EXAMPLE.COM/v"))
	require.Nil(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.StorageKey, second.StorageKey)
	assert.Equal(t, 1, handler.extractCalls, "cache hit must not invoke the handler")
	assert.Equal(t, 1, handler.fetchCalls)
	assert.Equal(t, 1, fixture.ledger.checks, "cache hit must not touch the quota ledger")
	assert.Equal(t, int64(1), ledger.usedMB, "cache hit must not accrue quota")
}

func TestPipelineCacheEntryWithMissingObjectTriggersRefetch(t *testing.T) {
	handler := defaultHandler()
	ledger := &fakeLedger{tier: quota.TierFree, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	first, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.Nil(t, err)

	// Simulate out-of-band deletion of the stored object
	delete(fixture.store.objects, first.StorageKey)

	second, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.Nil(t, err)

	assert.False(t, second.FromCache, "stale entry must not be served")
	assert.Equal(t, 2, handler.fetchCalls, "pipeline must re-fetch when the object is gone")
	exists, _ := fixture.store.Exists(context.Background(), second.StorageKey)
	assert.True(t, exists)
}

func TestPipelineForceRefreshBypassesCache(t *testing.T) {
	handler := defaultHandler()
	ledger := &fakeLedger{tier: quota.TierFree, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.Nil(t, err)

	task := newPipelineTask(t, "https://example.com/v")
	task.Request.Options.ForceRefresh = true
	result, err := fixture.pipeline.Execute(context.Background(), task)
	require.Nil(t, err)

	assert.False(t, result.FromCache)
	assert.Equal(t, 2, handler.fetchCalls)
}

func TestPipelineQuotaExhaustedFailsFast(t *testing.T) {
	handler := defaultHandler()
	ledger := &fakeLedger{tier: quota.TierFree, usedMB: 1000, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.NotNil(t, err)

	assert.Equal(t, QuotaFailure, KindOf(err))
	assert.Equal(t, 0, handler.extractCalls, "quota failure must precede any handler activity")
	assert.Equal(t, 0, handler.fetchCalls)
	assert.Equal(t, 0, fixture.store.uploads)
	assert.Equal(t, int64(1000), ledger.usedMB, "no usage accrues on a denied request")
}

func TestPipelineQuotaAccruesToExactLimit(t *testing.T) {
	handler := defaultHandler()
	handler.fetchContent = make([]byte, 5*1024*1024)
	ledger := &fakeLedger{tier: quota.TierFree, usedMB: 995, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	// 995 used of 1000, artifact is 5MB: allowed, lands exactly on
	// the limit.
	_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.Nil(t, err)
	assert.Equal(t, int64(1000), ledger.usedMB)

	// The next non-cached acquisition is denied.
	_, err = fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/other"))
	require.NotNil(t, err)
	assert.Equal(t, QuotaFailure, KindOf(err))
}

func TestPipelineRejectsArtifactThatWouldExceedQuota(t *testing.T) {
	handler := defaultHandler()
	handler.fetchContent = make([]byte, 10*1024*1024)
	ledger := &fakeLedger{tier: quota.TierFree, usedMB: 995, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	// 995 used of 1000, artifact is 10MB: the pre-fetch gate admits
	// the request, but the artifact's true size pushes it over the
	// limit and it is rejected before anything is persisted.
	_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.NotNil(t, err)

	assert.Equal(t, QuotaFailure, KindOf(err))
	assert.Equal(t, 1, handler.fetchCalls, "size is only known after the fetch")
	assert.Equal(t, 0, fixture.store.uploads, "oversized artifact is never persisted")
	assert.Equal(t, int64(995), ledger.usedMB, "no usage accrues on a denied request")
	assert.Empty(t, fixture.recorder.saved)

	fingerprint, err := Fingerprint("https://example.com/v")
	require.Nil(t, err)
	cached, _ := fixture.cache.Exists(context.Background(), "downloads", fingerprint)
	assert.False(t, cached, "no cache entry is created for a denied request")
}

func TestPipelineNoHandlerClaims(t *testing.T) {
	ledger := &fakeLedger{tier: quota.TierFree, limitMB: 1000}
	fixture := newPipelineFixture(t, nil, ledger)

	_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.NotNil(t, err)
	assert.Equal(t, NoHandlerFailure, KindOf(err))
	assert.Equal(t, 0, fixture.store.uploads)
}

func TestPipelineMetadataFailures(t *testing.T) {
	t.Run("extraction error", func(t *testing.T) {
		handler := defaultHandler()
		handler.metadataErr = errors.New("site layout changed")
		fixture := newPipelineFixture(t, handler, &fakeLedger{tier: quota.TierFree, limitMB: 1000})

		_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
		require.NotNil(t, err)
		assert.Equal(t, MetadataFailure, KindOf(err))
		assert.Equal(t, 0, handler.fetchCalls)
	})

	t.Run("empty metadata bag", func(t *testing.T) {
		handler := defaultHandler()
		handler.metadata = plugin.Metadata{}
		fixture := newPipelineFixture(t, handler, &fakeLedger{tier: quota.TierFree, limitMB: 1000})

		_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
		require.NotNil(t, err)
		assert.Equal(t, MetadataFailure, KindOf(err))
		assert.Equal(t, 0, handler.fetchCalls)
	})
}

func TestPipelineFetchFailureLeavesNoTrace(t *testing.T) {
	handler := defaultHandler()
	handler.fetchErr = errors.New("connection reset")
	ledger := &fakeLedger{tier: quota.TierFree, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	task := newPipelineTask(t, "https://example.com/v")
	_, err := fixture.pipeline.Execute(context.Background(), task)
	require.NotNil(t, err)

	assert.Equal(t, FetchFailure, KindOf(err))
	assert.Equal(t, 0, fixture.store.uploads)
	assert.Equal(t, int64(0), ledger.usedMB)
	assert.Len(t, fixture.recorder.saved, 0)

	cached, _ := fixture.cache.Exists(context.Background(), "downloads", task.Request.Fingerprint())
	assert.False(t, cached, "failed acquisition must not populate the cache")
}

func TestPipelineQuotaFailureDoesNotPopulateCache(t *testing.T) {
	handler := defaultHandler()
	handler.fetchContent = make([]byte, 20*1024*1024)
	ledger := &fakeLedger{tier: quota.TierFree, usedMB: 1000, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	task := newPipelineTask(t, "https://example.com/v")
	_, err := fixture.pipeline.Execute(context.Background(), task)
	require.NotNil(t, err)

	cached, _ := fixture.cache.Exists(context.Background(), "downloads", task.Request.Fingerprint())
	assert.False(t, cached)
}

func TestPipelineScratchDirectoryIsRemoved(t *testing.T) {
	handler := defaultHandler()
	ledger := &fakeLedger{tier: quota.TierFree, limitMB: 1000}
	fixture := newPipelineFixture(t, handler, ledger)

	tempDir := fixture.pipeline.config.TempDir
	_, err := fixture.pipeline.Execute(context.Background(), newPipelineTask(t, "https://example.com/v"))
	require.Nil(t, err)

	remaining, err := os.ReadDir(tempDir)
	require.Nil(t, err)
	assert.Len(t, remaining, 0, "scratch directories must be cleaned up on success")
}
