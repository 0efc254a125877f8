package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pipelinekit/pipelinekit/pipeline"
	"github.com/pipelinekit/pipelinekit/pipelinectx"
)

// Middleware fingerprints each command, consults Cache, and on miss
// executes the chain and stores the result. Concurrent misses for the
// same fingerprint are not coalesced; callers needing single-flight
// behavior should wrap next accordingly.
type Middleware struct {
	cache Cache
	ttl   time.Duration
}

// NewMiddleware creates a caching Middleware backed by cache, storing
// entries with the given ttl.
func NewMiddleware(c Cache, ttl time.Duration) *Middleware {
	return &Middleware{cache: c, ttl: ttl}
}

func (m *Middleware) Name() string               { return "cache" }
func (m *Middleware) Priority() pipeline.Priority { return pipeline.PriorityCache }

func (m *Middleware) Execute(ctx *pipelinectx.Context, cmd any, next pipeline.Next) (any, error) {
	fingerprint, err := Fingerprint(cmd)
	if err != nil {
		return next(ctx, cmd)
	}

	if cached, ok := m.cache.Get(fingerprint); ok {
		return cached, nil
	}

	result, err := next(ctx, cmd)
	if err != nil {
		return nil, err
	}
	m.cache.Put(fingerprint, result, m.ttl)
	return result, nil
}

// Fingerprint computes a stable sha256 digest of cmd's canonical JSON
// encoding, used as the cache key.
func Fingerprint(cmd any) (string, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
