// Package pending holds in-flight draft transactions between two messages of
// the same conversation. State is in-memory and single-process on purpose: a
// draft that survives neither a restart nor ten minutes of silence is cheap to
// re-send.
package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gasto-obra/backend/internal/domain"
)

// DefaultTTL is how long a draft waits for the user's reply.
const DefaultTTL = 10 * time.Minute

// Entry wraps a draft with its conversation state. AwaitingConfirmation
// distinguishes a fully resolved draft waiting for yes/no from one still
// waiting for a project tag.
type Entry struct {
	Identity             string
	AccountID            uuid.UUID
	Draft                domain.Draft
	AwaitingConfirmation bool
	CreatedAt            time.Time
}

// Store keeps at most one Entry per sender identity. Writes replace any
// previous entry; entries expire after the TTL.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

type Option func(*Store)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores entry for its identity, discarding any previous entry, and arms
// a deferred eviction. The eviction re-checks the stored entry's creation
// timestamp so a timer armed for a superseded entry never deletes its
// replacement.
func (s *Store) Put(entry *Entry) {
	s.mu.Lock()
	entry.CreatedAt = s.now()
	createdAt := entry.CreatedAt
	identity := entry.Identity
	s.entries[identity] = entry
	s.mu.Unlock()
	time.AfterFunc(s.ttl, func() {
		s.evict(identity, createdAt)
	})
}

func (s *Store) evict(identity string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[identity]; ok && current.CreatedAt.Equal(createdAt) {
		delete(s.entries, identity)
	}
}

// Get returns the live entry for identity. An entry past its TTL is evicted
// and reported absent even if its timer has not fired yet.
func (s *Store) Get(identity string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[identity]
	if !ok {
		return nil, false
	}
	if s.now().Sub(entry.CreatedAt) > s.ttl {
		delete(s.entries, identity)
		return nil, false
	}
	return entry, true
}

// Clear removes any entry for identity.
func (s *Store) Clear(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
}
