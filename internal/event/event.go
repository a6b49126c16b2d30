// A small synchronous/asynchronous event bus used to decouple the
// acquisition service from the parts of the system that observe it
// (the API broadcaster, chiefly). Each interested party registers a
// handler function or channel for the events it cares about.
package event

import (
	"sync"

	"github.com/DINO060/mediasink/pkg/logger"
)

var log = logger.Get("EventBus")

type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		mu           sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	// Dispatched with a task ID whenever a tasks status changes.
	TaskUpdateEvent Event = "task:update"

	// Dispatched with a task ID whenever a tasks progress advances.
	TaskProgressEvent Event = "task:update:progress"

	// Dispatched with a task ID when a task reaches a terminal state.
	TaskCompleteEvent Event = "task:complete"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes a channel and a set of events, and will
// send a HandlerEvent on the channel any time one of those events is
// dispatched.
//
// If the channel is BLOCKED when the event bus attempts to send then
// the dispatching thread is blocked too; buffer handler channels
// appropriately.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction registers a handler that runs synchronously
// on the dispatching goroutine. The handle provided should return
// quickly, else other threads dispatching this event will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction registers a handler that is run inside
// a new goroutine per dispatch.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch delivers the payload to every handler registered for the
// event.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	handler.mu.RLock()
	fnHandlers := handler.fnHandlers[event]
	chanHandlers := handler.chanHandlers[event]
	handler.mu.RUnlock()

	if len(fnHandlers) == 0 && len(chanHandlers) == 0 {
		log.Emit(logger.VERBOSE, "Dispatch of event %s ignored - no handlers registered\n", event)
		return
	}

	for _, method := range fnHandlers {
		if method.async {
			go method.handle(event, payload)
		} else {
			method.handle(event, payload)
		}
	}

	for _, channel := range chanHandlers {
		channel <- HandlerEvent{Event: event, Payload: payload}
	}
}
