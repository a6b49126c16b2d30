package acquire

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/DINO060/mediasink/internal/event"
	"github.com/DINO060/mediasink/internal/media"
	"github.com/DINO060/mediasink/internal/plugin"
	"github.com/DINO060/mediasink/internal/quota"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

var log = logger.Get("AcquirePipeline")

// Namespace under which pipeline results are cached.
const cacheNamespace = "downloads"

// Progress milestones reported as the pipeline advances through its
// states. Progress is monotonic; a cache hit jumps straight to 100.
const (
	progressMetadata = 10
	progressFetch    = 30
	progressPersist  = 70
	progressRecord   = 90
	progressDone     = 100
)

type (
	// ContentCache is the fingerprint-keyed accelerator consulted
	// before any handler is invoked. It is never the source of truth
	// for object existence.
	ContentCache interface {
		Get(ctx context.Context, namespace string, key string, dest any) (bool, error)
		Set(ctx context.Context, namespace string, key string, value any, ttl time.Duration) error
		Delete(ctx context.Context, namespace string, key string) (bool, error)
	}

	// QuotaLedger guards per-user daily consumption.
	QuotaLedger interface {
		CheckAndMaybeReset(userID int64) (quota.Status, error)
		AddUsage(userID int64, byteCount int64) error
	}

	// HandlerResolver routes a URL to the source handler claiming it.
	HandlerResolver interface {
		FindHandler(url string) plugin.Handler
	}

	// ObjectStore is the subset of the object store contract the
	// pipeline needs; the store owns key derivation.
	ObjectStore interface {
		Upload(ctx context.Context, localPath string, mediaKind string) (string, error)
		Exists(ctx context.Context, key string) (bool, error)
		PublicURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	}

	// ArtifactRecorder persists the durable record of an acquisition.
	ArtifactRecorder interface {
		Save(artifact *media.Artifact) error
	}

	// CacheEntry is the value stored against a URL fingerprint. It
	// points at the object store; the bytes themselves never pass
	// through the cache.
	CacheEntry struct {
		StorageKey  string
		ByteSize    int64
		ContentHash string
		Metadata    map[string]any
		CachedAt    time.Time
		ExpiresAt   time.Time
	}

	PipelineConfig struct {
		// TempDir hosts the per-task scratch directories handlers
		// fetch in to. Defaults to the OS temp dir when empty.
		TempDir string `yaml:"temp_dir" env:"ACQUIRE_TEMP_DIR"`

		// Cache retention for completed results, by tier.
		CacheTTL           time.Duration `yaml:"cache_ttl" env:"ACQUIRE_CACHE_TTL" env-default:"24h"`
		PrivilegedCacheTTL time.Duration `yaml:"privileged_cache_ttl" env:"ACQUIRE_PRIVILEGED_CACHE_TTL" env-default:"168h"`

		// Expiry applied to presigned public URLs.
		PublicURLExpiry time.Duration `yaml:"public_url_expiry" env:"ACQUIRE_PUBLIC_URL_EXPIRY" env-default:"1h"`
	}

	// Pipeline is the state machine that turns an accepted request in
	// to a stored artifact: cache check, quota check, handler
	// resolution, metadata extraction, fetch, persist, record. Every
	// step performs a single attempt; a failure at any step
	// terminates the task with a classified cause.
	//
	// Two sequential calls for the same fingerprint are safe (the
	// second is a pure cache hit) but two CONCURRENT calls for a
	// fingerprint with no fresh entry may both execute the full
	// pipeline; the deterministic object key means they converge on
	// the same stored bytes.
	Pipeline struct {
		cache    ContentCache
		ledger   QuotaLedger
		resolver HandlerResolver
		store    ObjectStore
		recorder ArtifactRecorder
		events   event.EventDispatcher
		config   PipelineConfig
		now      func() time.Time
	}
)

func NewPipeline(
	config PipelineConfig,
	cache ContentCache,
	ledger QuotaLedger,
	resolver HandlerResolver,
	store ObjectStore,
	recorder ArtifactRecorder,
	events event.EventDispatcher,
) *Pipeline {
	return &Pipeline{
		cache:    cache,
		ledger:   ledger,
		resolver: resolver,
		store:    store,
		recorder: recorder,
		events:   events,
		config:   config,
		now:      time.Now,
	}
}

// Execute drives the task through the acquisition state machine,
// returning the result payload or the classified failure.
func (pipeline *Pipeline) Execute(ctx context.Context, task *Task) (*Result, error) {
	request := &task.Request
	fingerprint := request.Fingerprint()

	// CACHE_CHECK. A fresh entry whose object still exists
	// short-circuits the entire pipeline - no quota check, no
	// handler invocation.
	if !request.Options.ForceRefresh {
		if result, ok := pipeline.checkCache(ctx, task); ok {
			pipeline.reportProgress(task, progressDone)
			return result, nil
		}
	}

	// QUOTA_CHECK. Fail fast before any network or handler activity.
	status, err := pipeline.ledger.CheckAndMaybeReset(request.UserID)
	if err != nil {
		return nil, newPipelineError(ValidationFailure, fmt.Sprintf("quota lookup for user %d failed", request.UserID), err)
	}
	if status.UsedMB >= status.LimitMB {
		return nil, newPipelineError(QuotaFailure, fmt.Sprintf("daily quota exhausted (%d/%dMB)", status.UsedMB, status.LimitMB), nil)
	}

	// HANDLER_RESOLUTION. No handler claiming the URL is terminal,
	// not retryable.
	handler := pipeline.resolver.FindHandler(request.URL)
	if handler == nil {
		return nil, newPipelineError(NoHandlerFailure, fmt.Sprintf("no handler claims URL '%s'", request.URL), nil)
	}

	// METADATA_EXTRACTION. An empty bag is terminal, and distinct
	// from an extraction error.
	pipeline.reportProgress(task, progressMetadata)
	metadata, err := handler.ExtractInfo(ctx, request.URL)
	if err != nil {
		return nil, newPipelineError(MetadataFailure, "handler failed to extract metadata", err)
	}
	if len(metadata) == 0 {
		return nil, newPipelineError(MetadataFailure, "handler extracted no metadata", nil)
	}

	var info MediaInfo
	if err := mapstructure.WeakDecode(map[string]any(metadata), &info); err != nil {
		return nil, newPipelineError(MetadataFailure, "extracted metadata is malformed", err)
	}

	// CONTENT_FETCH. The handler fetches in to a private scratch
	// directory which is removed on every exit path, success
	// included.
	pipeline.reportProgress(task, progressFetch)
	scratchDir, err := os.MkdirTemp(pipeline.config.TempDir, "acquire-"+task.ID.String()+"-")
	if err != nil {
		return nil, newPipelineError(FetchFailure, "failed to create scratch directory", err)
	}
	defer os.RemoveAll(scratchDir)

	fetched, err := handler.Fetch(ctx, request.URL, scratchDir, pluginOptions(request))
	if err != nil {
		return nil, newPipelineError(FetchFailure, "handler fetch failed", err)
	}
	if !fetched.Success || fetched.LocalPath == "" {
		return nil, newPipelineError(FetchFailure, fmt.Sprintf("handler fetch was unsuccessful: %v", fetched.Metadata["error"]), nil)
	}

	fileInfo, err := os.Stat(fetched.LocalPath)
	if err != nil {
		return nil, newPipelineError(FetchFailure, "fetched artifact is missing from scratch directory", err)
	}
	byteSize := fileInfo.Size()

	// Now that the artifact's true size is known, reject it outright
	// if accruing it would breach the daily limit. The deferred
	// scratch cleanup discards the fetched bytes.
	if artifactMB := quota.MegabytesFromBytes(byteSize); status.UsedMB+artifactMB > status.LimitMB {
		return nil, newPipelineError(QuotaFailure, fmt.Sprintf("artifact of %dMB would exceed daily quota (%d/%dMB)", artifactMB, status.UsedMB, status.LimitMB), nil)
	}

	// PERSIST. Upload failure is terminal; no automatic retry. The
	// deferred scratch cleanup still applies.
	pipeline.reportProgress(task, progressPersist)
	storageKey, err := pipeline.store.Upload(ctx, fetched.LocalPath, request.MediaKind)
	if err != nil {
		return nil, newPipelineError(PersistFailure, "failed to persist artifact to object store", err)
	}

	// RECORD_AND_CACHE. Accrue quota, record the artifact, refresh
	// the cache entry.
	pipeline.reportProgress(task, progressRecord)
	if err := pipeline.ledger.AddUsage(request.UserID, byteSize); err != nil {
		return nil, newPipelineError(PersistFailure, "failed to accrue quota usage", err)
	}

	contentHash := contentHashFromKey(storageKey)
	ttl := pipeline.cacheTTLFor(status.Tier)
	cachedAt := pipeline.now()

	if err := pipeline.recorder.Save(&media.Artifact{
		UserID:          request.UserID,
		URL:             request.URL,
		URLFingerprint:  fingerprint,
		MediaKind:       request.MediaKind,
		StorageKey:      storageKey,
		ByteSize:        byteSize,
		ContentHash:     contentHash,
		Title:           nullString(info.Title),
		Description:     nullString(info.Description),
		DurationSeconds: nullFloat(info.Duration),
		Resolution:      nullString(info.Resolution),
		Metadata:        jsonMetadata(metadata),
		CachedAt:        cachedAt,
		CacheExpiresAt:  cachedAt.Add(ttl),
	}); err != nil {
		return nil, newPipelineError(PersistFailure, "failed to record artifact", err)
	}

	entry := CacheEntry{
		StorageKey:  storageKey,
		ByteSize:    byteSize,
		ContentHash: contentHash,
		Metadata:    metadata,
		CachedAt:    cachedAt,
		ExpiresAt:   cachedAt.Add(ttl),
	}
	if err := pipeline.cache.Set(ctx, cacheNamespace, fingerprint, entry, ttl); err != nil {
		// The cache is an accelerator; a failed write costs a future
		// re-fetch, not this result.
		log.Emit(logger.WARNING, "Failed to cache result for fingerprint %.12s...: %v\n", fingerprint, err)
	}

	publicURL, err := pipeline.store.PublicURL(ctx, storageKey, pipeline.config.PublicURLExpiry)
	if err != nil {
		return nil, newPipelineError(PersistFailure, "failed to derive public URL", err)
	}

	pipeline.reportProgress(task, progressDone)
	return &Result{
		PublicURL:   publicURL,
		StorageKey:  storageKey,
		ByteSize:    byteSize,
		ContentHash: contentHash,
		Info:        info,
		Metadata:    metadata,
		FromCache:   false,
	}, nil
}

// checkCache looks the fingerprint up and, on a hit, verifies the
// referenced object still exists before trusting the entry. An entry
// pointing at a missing object is deleted and treated as a miss; the
// full pipeline then overwrites it.
func (pipeline *Pipeline) checkCache(ctx context.Context, task *Task) (*Result, bool) {
	fingerprint := task.Request.Fingerprint()

	var entry CacheEntry
	hit, err := pipeline.cache.Get(ctx, cacheNamespace, fingerprint, &entry)
	if err != nil {
		log.Emit(logger.WARNING, "Cache lookup for fingerprint %.12s... failed: %v\n", fingerprint, err)
		return nil, false
	}
	if !hit || !entry.ExpiresAt.After(pipeline.now()) {
		return nil, false
	}

	exists, err := pipeline.store.Exists(ctx, entry.StorageKey)
	if err != nil {
		log.Emit(logger.WARNING, "Object existence check for '%s' failed: %v\n", entry.StorageKey, err)
		return nil, false
	}
	if !exists {
		log.Emit(logger.REMOVE, "Cache entry for fingerprint %.12s... points at missing object '%s' - dropping\n", fingerprint, entry.StorageKey)
		_, _ = pipeline.cache.Delete(ctx, cacheNamespace, fingerprint)
		return nil, false
	}

	publicURL, err := pipeline.store.PublicURL(ctx, entry.StorageKey, pipeline.config.PublicURLExpiry)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to derive public URL for cached object '%s': %v\n", entry.StorageKey, err)
		return nil, false
	}

	var info MediaInfo
	_ = mapstructure.WeakDecode(entry.Metadata, &info)

	log.Emit(logger.SUCCESS, "Cache hit for fingerprint %.12s... (object '%s')\n", fingerprint, entry.StorageKey)
	return &Result{
		PublicURL:   publicURL,
		StorageKey:  entry.StorageKey,
		ByteSize:    entry.ByteSize,
		ContentHash: entry.ContentHash,
		Info:        info,
		Metadata:    entry.Metadata,
		FromCache:   true,
	}, true
}

func (pipeline *Pipeline) reportProgress(task *Task, progress int) {
	if task.setProgress(progress) && pipeline.events != nil {
		pipeline.events.Dispatch(event.TaskProgressEvent, task.ID)
	}
}

func (pipeline *Pipeline) cacheTTLFor(tier quota.Tier) time.Duration {
	if tier.Privileged() {
		return pipeline.config.PrivilegedCacheTTL
	}

	return pipeline.config.CacheTTL
}

func pluginOptions(request *Request) plugin.Options {
	options := plugin.Options{}
	for key, value := range request.Options.Extra {
		options[key] = value
	}
	options["media_kind"] = request.MediaKind

	return options
}

// contentHashFromKey recovers the trailing content hash segment from
// a deterministic object key.
func contentHashFromKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}

	return key
}
