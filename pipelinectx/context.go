// Package pipelinectx implements a per-invocation execution context: a
// concurrency-safe key/value store embedding context.Context, scoped to
// one command dispatch and forkable for parallel composition.
//
// The locking discipline uses a single sync.RWMutex guarding a plain map,
// rather than per-key sharding or a lock-free structure — any of the
// three is valid as long as reads/writes stay linearizable per key.
package pipelinectx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pipelinekit/pipelinekit/events"
)

// Metadata is the immutable record attached to every invocation. Once a
// Context is constructed, Metadata never changes; Context.Metadata always
// returns the same value.
type Metadata struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	UserID        string
	CorrelationID string
	Source        string
}

// NewMetadata creates command metadata with a fresh ID and the current
// time. UserID, CorrelationID, and Source are optional and may be left
// empty.
func NewMetadata(userID, correlationID, source string) Metadata {
	return Metadata{
		ID:            uuid.New(),
		CreatedAt:     time.Now(),
		UserID:        userID,
		CorrelationID: correlationID,
		Source:        source,
	}
}

// store holds the mutable key/value state shared by a Context and every
// descendant produced by WithDeadline (same identity, same map — a linear
// continuation of the same invocation), but NOT by Fork (new store, so
// concurrent branches cannot observe each other's writes).
type store struct {
	mu       sync.RWMutex
	values   map[any]any
	disposed bool
}

func newStore() *store {
	return &store{values: make(map[any]any)}
}

func (s *store) get(key any) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *store) set(key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.values[key] = value
}

func (s *store) dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

func (s *store) snapshot() *store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[any]any, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return &store{values: cp}
}

// Context is the mutable, concurrency-safe container scoped to one
// pipeline invocation. It embeds context.Context so deadline/cancellation
// propagation works transparently for any code that accepts a plain
// context.Context.
type Context struct {
	context.Context

	metadata  Metadata
	emitter   *events.Emitter
	startedAt time.Time
	store     *store
}

// New creates a root Context. emitter may be nil; every Context operation
// tolerates a nil emitter (see events.Emitter's nil-safety).
func New(parent context.Context, metadata Metadata, emitter *events.Emitter) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{
		Context:   parent,
		metadata:  metadata,
		emitter:   emitter,
		startedAt: time.Now(),
		store:     newStore(),
	}
}

// Metadata returns the immutable metadata bound at construction.
// Attempting to mutate it is a programming error — there is deliberately
// no setter.
func (c *Context) Metadata() Metadata {
	return c.metadata
}

// Emitter returns the bound event emitter, or nil if none was bound.
func (c *Context) Emitter() *events.Emitter {
	return c.emitter
}

// StartedAt returns when this Context was created.
func (c *Context) StartedAt() time.Time {
	return c.startedAt
}

// Get returns the last value written for key, and whether it was present.
// An unknown key returns (nil, false) rather than an error.
func (c *Context) Get(key any) (any, bool) {
	return c.store.get(key)
}

// Set stores value under key. Writes after the context has been disposed
// are a silent no-op rather than an error.
func (c *Context) Set(key, value any) {
	c.store.set(key, value)
}

// Dispose marks the context as no longer accepting writes. Called after
// the handler returns; Get remains valid after Dispose so middleware
// unwinding the chain can still inspect accumulated state.
func (c *Context) Dispose() {
	c.store.dispose()
}

// Fork returns a child Context sharing metadata and the event emitter, but
// holding a snapshot copy of the key map: subsequent writes to the child
// are never observable in the parent. Value types in the map are copied by
// value; reference types (slices, maps, pointers) are shared by reference
// — a documented boundary, the same one statestore.MemoryStore's
// deepCopyState accepts for the conversation store it forks.
//
// The child's embedded context.Context is derived from the parent via
// context.WithCancel, so cancelling the parent cancels every fork, and the
// returned cancel func lets the caller cancel just this fork (used by
// parallel composition to cancel a losing branch without touching
// siblings).
func (c *Context) Fork() (child *Context, cancel context.CancelFunc) {
	childCtx, cancelFn := context.WithCancel(c.Context)
	child = &Context{
		Context:   childCtx,
		metadata:  c.metadata,
		emitter:   c.emitter,
		startedAt: c.startedAt,
		store:     c.store.snapshot(),
	}
	return child, cancelFn
}

// WithDeadline returns a child Context that shares this Context's store
// (same identity — this is a linear continuation, not a fork) but whose
// embedded context.Context carries the given deadline, or the parent's
// existing deadline if it is already tighter.
func (c *Context) WithDeadline(d time.Time) (child *Context, cancel context.CancelFunc) {
	if existing, ok := c.Context.Deadline(); ok && existing.Before(d) {
		d = existing
	}
	childCtx, cancelFn := context.WithDeadline(c.Context, d)
	child = &Context{
		Context:   childCtx,
		metadata:  c.metadata,
		emitter:   c.emitter,
		startedAt: c.startedAt,
		store:     c.store,
	}
	return child, cancelFn
}
