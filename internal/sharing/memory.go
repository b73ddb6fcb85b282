package sharing

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps share tokens in process. A background sweeper removes
// expired tokens until Close is called.
type MemoryStore struct {
	mu     sync.Mutex
	shares map[string]Share
	ttl    time.Duration
	now    func() time.Time
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewMemoryStore(ttl, sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		shares: make(map[string]Share),
		ttl:    ttl,
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.sweep(sweepEvery)
	return s
}

func (s *MemoryStore) Create(_ context.Context, userID int64) (Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	share := Share{Token: newToken(), UserID: userID, ExpiresAt: s.now().Add(s.ttl).UTC()}
	s.shares[share.Token] = share
	return share, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) (Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.shares[token]
	if !ok {
		return Share{}, ErrTokenNotFound
	}
	if !s.now().Before(share.ExpiresAt) {
		delete(s.shares, token)
		return Share{}, ErrTokenNotFound
	}
	return share, nil
}

func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shares[token]; !ok {
		return ErrTokenNotFound
	}
	delete(s.shares, token)
	return nil
}

// Close stops the sweeper. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}

func (s *MemoryStore) sweep(every time.Duration) {
	defer close(s.done)
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for token, share := range s.shares {
		if !now.Before(share.ExpiresAt) {
			delete(s.shares, token)
			removed++
		}
	}
	return removed
}
