package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DINO060/mediasink/internal/event"
	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/google/uuid"
)

const (
	debounceDuration = time.Second * 2
	maxTimerDuration = time.Second * 5

	rapidEventDebounceDuration = time.Millisecond * 500
	rapidEventMaxTimerDuration = time.Second * 2
)

type (
	broadcastHandler func(uuid.UUID) error

	broadcaster interface {
		BroadcastTaskUpdate(uuid.UUID) error
		BroadcastTaskProgress(uuid.UUID) error
		BroadcastTaskComplete(uuid.UUID) error
	}

	eventKey struct {
		ev event.Event
		id uuid.UUID
	}

	// activityService bridges the internal event bus to the websocket
	// broadcaster, debouncing rapid-fire events (progress updates in
	// particular) so clients are not flooded.
	activityService struct {
		*sync.Mutex
		broadcaster
		eventBus       event.EventHandler
		debounceTimers map[eventKey]*time.Timer
		maxTimers      map[eventKey]*time.Timer
	}
)

func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	return &activityService{
		Mutex:          &sync.Mutex{},
		broadcaster:    broadcaster,
		eventBus:       eventBus,
		debounceTimers: make(map[eventKey]*time.Timer),
		maxTimers:      make(map[eventKey]*time.Timer),
	}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.TaskUpdateEvent, event.TaskProgressEvent, event.TaskCompleteEvent)

	log.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	resourceID, ok := ev.Payload.(uuid.UUID)
	if !ok {
		return errors.New("illegal payload (expected UUID)")
	}

	resourceKey := eventKey{id: resourceID, ev: ev.Event}

	switch ev.Event {
	case event.TaskUpdateEvent:
		service.scheduleEventBroadcast(resourceKey, service.BroadcastTaskUpdate)
	case event.TaskProgressEvent:
		service.scheduleRapidEventBroadcast(resourceKey, service.BroadcastTaskProgress)
	case event.TaskCompleteEvent:
		// Completion is never debounced; clients waiting on a result
		// should hear about it immediately.
		return service.BroadcastTaskComplete(resourceID)
	default:
		return errors.New("unknown event type")
	}

	return nil
}

func (service *activityService) scheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service.scheduleBroadcast(resourceKey, handler, debounceDuration, maxTimerDuration)
}

func (service *activityService) scheduleRapidEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service.scheduleBroadcast(resourceKey, handler, rapidEventDebounceDuration, rapidEventMaxTimerDuration)
}

func (service *activityService) scheduleBroadcast(resourceKey eventKey, handler broadcastHandler, debounceTime time.Duration, maxTime time.Duration) {
	service.Lock()
	defer service.Unlock()

	broadcast := func() { service.broadcast(resourceKey, handler) }

	// Cancel and re-set a debounce timer
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
	}
	service.debounceTimers[resourceKey] = time.AfterFunc(debounceTime, broadcast)

	// Set a max timer if not already set
	if _, ok := service.maxTimers[resourceKey]; !ok {
		service.maxTimers[resourceKey] = time.AfterFunc(maxTime, broadcast)
	}
}

func (service *activityService) broadcast(resourceKey eventKey, handler broadcastHandler) {
	service.Lock()

	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
		delete(service.debounceTimers, resourceKey)
	}

	if t, ok := service.maxTimers[resourceKey]; ok {
		t.Stop()
		delete(service.maxTimers, resourceKey)
	}

	service.Unlock()

	if err := handler(resourceKey.id); err != nil {
		log.Emit(logger.WARNING, "Broadcast for %v failed: %v\n", resourceKey.id, err)
	}
}
