package pipeline

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/petabridge/TurboMqtt-sub000/internal/topic"
)

// Message is one inbound application-level PUBLISH delivered to a handler.
type Message struct {
	Topic   string
	Payload []byte
	QoS     uint8
	Retain  bool
}

// Handler receives messages matching a subscribed filter.
type Handler func(Message)

// Router holds the subscription-handler registry (the subscription half of
// AckingStage) and memoizes topic-name -> matching-filter lookups keyed by
// an xxhash digest of the topic name, since a busy subscriber re-evaluates
// the same handful of topic names against the same filter set on every
// delivered message.
type Router struct {
	mu      sync.RWMutex
	filters map[string]Handler
	cache   map[uint64][]string
}

func NewRouter() *Router {
	return &Router{
		filters: make(map[string]Handler),
		cache:   make(map[uint64][]string),
	}
}

// Register adds or replaces the handler for filter, invalidating the match
// cache since the filter set changed.
func (r *Router) Register(filter string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[filter] = h
	r.cache = make(map[uint64][]string)
}

// Unregister removes filter, invalidating the match cache.
func (r *Router) Unregister(filter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filters, filter)
	r.cache = make(map[uint64][]string)
}

// Dispatch invokes every handler whose filter matches msg.Topic.
func (r *Router) Dispatch(msg Message) {
	r.mu.RLock()
	key := xxhash.Sum64String(msg.Topic)
	matched, cached := r.cache[key]
	if !cached {
		r.mu.RUnlock()
		matched = r.computeMatches(msg.Topic, key)
		r.mu.RLock()
	}
	handlers := make([]Handler, 0, len(matched))
	for _, filter := range matched {
		if h, ok := r.filters[filter]; ok {
			handlers = append(handlers, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (r *Router) computeMatches(name string, key uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []string
	for filter := range r.filters {
		if topic.Match(filter, name) {
			matched = append(matched, filter)
		}
	}
	r.cache[key] = matched
	return matched
}
