package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/DINO060/mediasink/pkg/logger"
)

var log = logger.Get("PluginRegistry")

// Registry holds the active set of handlers ordered by descending
// priority. Registration order breaks priority ties (stable sort), so
// routing is deterministic even when two handlers share a priority.
//
// Handlers are not assumed to be mutually exclusive; FindHandler
// simply returns the first handler - in priority order - whose
// predicate accepts the URL.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make([]Handler, 0)}
}

// Register appends the handler to the active set and re-sorts it by
// descending priority. Handler names must be unique.
func (registry *Registry) Register(handler Handler) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	name := handler.Info().Name
	for _, existing := range registry.handlers {
		if existing.Info().Name == name {
			return fmt.Errorf("handler '%s' is already registered", name)
		}
	}

	registry.handlers = append(registry.handlers, handler)
	sort.SliceStable(registry.handlers, func(i, j int) bool {
		return registry.handlers[i].Info().Priority > registry.handlers[j].Info().Priority
	})

	log.Emit(logger.NEW, "Registered handler '%s' (priority %d)\n", name, handler.Info().Priority)
	return nil
}

// Unregister removes the named handler from the active set. Removing
// a handler that is not registered is a no-op.
func (registry *Registry) Unregister(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for i, handler := range registry.handlers {
		if handler.Info().Name == name {
			registry.handlers = append(registry.handlers[:i], registry.handlers[i+1:]...)
			log.Emit(logger.REMOVE, "Unregistered handler '%s'\n", name)
			return
		}
	}
}

// FindHandler returns the highest-priority handler whose CanHandle
// predicate accepts the URL, or nil when no handler claims it.
func (registry *Registry) FindHandler(url string) Handler {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	for _, handler := range registry.handlers {
		if handler.CanHandle(url) {
			return handler
		}
	}

	return nil
}

// Handlers returns the Info for every registered handler, in
// resolution order.
func (registry *Registry) Handlers() []Info {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	infos := make([]Info, len(registry.handlers))
	for i, handler := range registry.handlers {
		infos[i] = handler.Info()
	}

	return infos
}
