// Package idempotency remembers the response to a keyed request so a client
// retry is answered with the same result instead of a second ledger write.
package idempotency

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrInProgress is returned by Reserve while another request holds the key.
var ErrInProgress = errors.New("request with this idempotency key is still being processed")

const DefaultTTL = 24 * time.Hour

// sweepEvery spaces out the expired-key sweeps of a MemoryStore.
const sweepEvery = time.Minute

// Response is a captured HTTP response.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Store is the key registry behind the HTTP idempotency middleware.
//
// Reserve claims key for the caller. It returns (nil, nil) when the caller
// should process the request, the stored Response when one exists, and
// ErrInProgress when another request holds the key. A successful Reserve
// must be followed by Complete or Release.
type Store interface {
	Reserve(ctx context.Context, key string) (*Response, error)
	Complete(ctx context.Context, key string, resp Response) error
	Release(ctx context.Context, key string) error
}

type memoryEntry struct {
	resp    *Response
	expires time.Time
}

// MemoryStore keeps keys in process. Used when no Redis is configured and in
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	swept   time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.swept) >= sweepEvery {
		s.sweep(now)
	}
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		if e.resp == nil {
			return nil, ErrInProgress
		}
		resp := *e.resp
		return &resp, nil
	}
	s.entries[key] = memoryEntry{expires: now.Add(s.ttl)}
	return nil, nil
}

// sweep drops expired keys. Callers hold mu.
func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.swept = now
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{resp: &resp, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Cacheable reports whether a response should be remembered. Server faults
// are released so the client can retry them.
func Cacheable(status int) bool {
	return status < http.StatusInternalServerError
}
