package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DINO060/mediasink/internal/acquire"
	"github.com/DINO060/mediasink/internal/api"
	"github.com/DINO060/mediasink/internal/cache"
	"github.com/DINO060/mediasink/internal/database"
	"github.com/DINO060/mediasink/internal/event"
	"github.com/DINO060/mediasink/internal/media"
	"github.com/DINO060/mediasink/internal/plugin"
	"github.com/DINO060/mediasink/internal/plugin/direct"
	"github.com/DINO060/mediasink/internal/plugin/ytdlp"
	"github.com/DINO060/mediasink/internal/quota"
	"github.com/DINO060/mediasink/internal/ratelimit"
	"github.com/DINO060/mediasink/internal/storage"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		BroadcastTaskUpdate(uuid.UUID) error
		BroadcastTaskProgress(uuid.UUID) error
		BroadcastTaskComplete(uuid.UUID) error
	}

	AcquireService interface {
		RunnableService
		Submit(request acquire.Request) (*acquire.Task, error)
		Task(id uuid.UUID) *acquire.Task
		AllTasks() []*acquire.Task
		CancelTask(id uuid.UUID) error
	}

	// submissionGate binds the generic sliding-window limiter to the
	// configured submission limit.
	submissionGate struct {
		limiter *ratelimit.Limiter
		limit   int
		window  time.Duration
	}
)

func (gate *submissionGate) Check(ctx context.Context, key string) (bool, error) {
	return gate.limiter.Check(ctx, key, gate.limit, gate.window)
}

// mediasinkImpl represents the top-level object for the server, and
// is responsible for initialising embedded support services, stores
// and event handling.
type mediasinkImpl struct {
	eventBus        event.EventCoordinator
	activityService *activityService
	config          MediasinkConfig

	registry      *plugin.Registry
	contentCache  *cache.Cache
	objectStore   storage.Store
	quotaLedger   *quota.Ledger
	artifactStore *media.Store

	restGateway    RestGateway
	acquireService AcquireService
}

func New(config MediasinkConfig) (*mediasinkImpl, error) {
	log.Emit(logger.DEBUG, "Bootstrapping services using config: %#v\n", config)

	sink := &mediasinkImpl{
		eventBus: event.New(),
		config:   config,
	}

	registry := plugin.NewRegistry()
	if err := registry.Register(ytdlp.New(config.Sources.Ytdlp)); err != nil {
		return nil, fmt.Errorf("failed to install yt-dlp source handler: %w", err)
	}
	if err := registry.Register(direct.New()); err != nil {
		return nil, fmt.Errorf("failed to install direct-download source handler: %w", err)
	}
	sink.registry = registry

	return sink, nil
}

// Run will start the server by bringing up all required services and
// connections (redis, postgres, object storage, workers, REST
// gateway). This function will not return until the provided context
// is cancelled, or a service suffers an unrecoverable error.
func (sink *mediasinkImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	db := database.New()
	if err := db.Connect(sink.config.Database); err != nil {
		return err
	}
	sink.quotaLedger = quota.NewLedger(db.GetSqlxDb(), sink.config.Quota)
	sink.artifactStore = media.NewStore(db.GetSqlxDb())

	log.Emit(logger.NEW, "Connecting to redis...\n")
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     sink.config.Redis.Addr,
		Password: sink.config.Redis.Password,
		DB:       sink.config.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", sink.config.Redis.Addr, err)
	}

	cacheProvider, err := cache.NewRedisProvider(redisClient, true)
	if err != nil {
		return err
	}
	sink.contentCache = cache.New(cacheProvider)
	defer sink.contentCache.Close()

	windowStore, err := ratelimit.NewRedisWindowStore(redisClient)
	if err != nil {
		return err
	}
	limiter := &submissionGate{
		limiter: ratelimit.New(windowStore),
		limit:   sink.config.RateLimit.SubmitLimit,
		window:  sink.config.RateLimit.SubmitWindow,
	}

	log.Emit(logger.NEW, "Connecting to object storage...\n")
	objectStore, err := storage.NewMinioStore(ctx, sink.config.Storage)
	if err != nil {
		return err
	}
	sink.objectStore = objectStore

	pipeline := acquire.NewPipeline(
		sink.config.Acquire.Pipeline,
		sink.contentCache,
		sink.quotaLedger,
		sink.registry,
		sink.objectStore,
		sink.artifactStore,
		sink.eventBus,
	)

	acquireService, err := acquire.New(sink.config.Acquire, pipeline, sink.eventBus)
	if err != nil {
		return err
	}
	sink.acquireService = acquireService

	sink.restGateway = api.NewRestGateway(
		&sink.config.Rest,
		sink.acquireService,
		limiter,
		sink.quotaLedger,
		sink.artifactStore,
		sink.registry,
	)
	sink.activityService = newActivityService(sink.restGateway, sink.eventBus)

	janitor := newStorageJanitor(objectStore, sink.config.Storage.CleanupInterval, sink.config.Storage.RetentionPeriod)

	wg := &sync.WaitGroup{}
	sink.spawnAsyncService(ctx, wg, sink.acquireService, "acquire-service", crashHandler)
	sink.spawnAsyncService(ctx, wg, sink.activityService, "activity-service", crashHandler)
	sink.spawnAsyncService(ctx, wg, janitor, "storage-janitor", crashHandler)
	sink.spawnAsyncService(ctx, wg, sink.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "All services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as its own
// go-routine, ensuring that the service waitgroup is updated correctly.
func (sink *mediasinkImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
