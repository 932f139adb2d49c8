package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler consumes a decoded event payload. Handlers run synchronously on
// the dispatching goroutine; relevance filtering is the handler's job.
type Handler func(evt any)

// Subscription is the token returned by On and consumed by Off. Views keep
// it for the lifetime of their registration so re-mounts cannot leak or
// double-register handlers.
type Subscription string

type registration struct {
	id      Subscription
	handler Handler
}

// Router demultiplexes inbound named events to registered handlers. Each
// arrival is delivered to every handler registered for its name exactly
// once, in registration order. The router never deduplicates by handler
// identity and never filters by relevance.
type Router struct {
	mu     sync.RWMutex
	byName map[Name][]registration
	names  map[Subscription]Name
	logger zerolog.Logger
}

// NewRouter creates an event router.
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		byName: make(map[Name][]registration),
		names:  make(map[Subscription]Name),
		logger: logger.With().Str("service", "router").Logger(),
	}
}

// On registers a handler for an event name and returns its subscription.
func (r *Router) On(name Name, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := Subscription(uuid.NewString())
	r.byName[name] = append(r.byName[name], registration{id: id, handler: h})
	r.names[id] = name
	return id
}

// Off removes a single registration. Other registrations for the same name
// are untouched. Unknown subscriptions are a no-op.
func (r *Router) Off(id Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[id]
	if !ok {
		return
	}
	delete(r.names, id)
	regs := r.byName[name]
	for i, reg := range regs {
		if reg.id == id {
			r.byName[name] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(r.byName[name]) == 0 {
		delete(r.byName, name)
	}
}

// Dispatch decodes one envelope and delivers it synchronously. Undecodable
// and unknown events are logged and dropped; they never fail the read loop.
func (r *Router) Dispatch(env Envelope) {
	evt, err := Decode(env)
	if err != nil {
		r.logger.Warn().Err(err).Str("event", string(env.Event)).Msg("dropping event")
		return
	}

	r.mu.RLock()
	regs := make([]registration, len(r.byName[env.Event]))
	copy(regs, r.byName[env.Event])
	r.mu.RUnlock()

	for _, reg := range regs {
		reg.handler(evt)
	}
}
