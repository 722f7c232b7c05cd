package dialog

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps sessions in process memory with TTL
// eviction. Suitable for development and single-instance deployments.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySessionEntry
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

type memorySessionEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemorySessionStore creates an in-memory session store. A background
// sweep evicts sessions idle longer than ttl; Close stops the sweep.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &MemorySessionStore{
		sessions: make(map[string]*memorySessionEntry),
		ttl:      ttl,
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweep()
	return s
}

func (s *MemorySessionStore) Get(ctx context.Context, callerID string) (*Session, error) {
	s.mu.RLock()
	entry, ok := s.sessions[callerID]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}
	copied := *entry.session
	copied.Slots = entry.session.Slots.Clone()
	copied.History = append([]Turn(nil), entry.session.History...)
	return &copied, nil
}

func (s *MemorySessionStore) Save(ctx context.Context, session *Session) error {
	copied := *session
	copied.Slots = session.Slots.Clone()
	copied.History = append([]Turn(nil), session.History...)

	s.mu.Lock()
	s.sessions[session.CallerID] = &memorySessionEntry{
		session:   &copied,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, callerID string) error {
	s.mu.Lock()
	delete(s.sessions, callerID)
	s.mu.Unlock()
	return nil
}

// Close stops the eviction sweep.
func (s *MemorySessionStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemorySessionStore) sweep() {
	interval := s.ttl / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for id, entry := range s.sessions {
				if now.After(entry.expiresAt) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
