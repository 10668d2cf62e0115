package store

import (
	"sync"
	"time"

	"tenant-gate/internal/domain"

	"github.com/jonboulle/clockwork"
)

// TokenStore is a process-wide, thread-safe store for pending handoff tokens.
// Implements domain.TokenStore. A background sweep removes stale entries so
// unconsumed tokens cannot accumulate.
type TokenStore struct {
	mu      sync.Mutex
	entries map[string]domain.HandoffToken
	clock   clockwork.Clock
	done    chan struct{}
}

// NewTokenStore creates a token store and starts its sweep loop.
func NewTokenStore(clock clockwork.Clock) *TokenStore {
	s := &TokenStore{
		entries: make(map[string]domain.HandoffToken),
		clock:   clock,
		done:    make(chan struct{}),
	}
	// Create the ticker before spawning the loop so the ticker is registered
	// with the clock by the time the constructor returns; a fake clock
	// advanced immediately after construction still delivers the tick.
	ticker := clock.NewTicker(30 * time.Second)
	go s.sweepLoop(ticker)
	return s
}

// Put stores a freshly issued token.
func (s *TokenStore) Put(token domain.HandoffToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token.Value] = token
}

// ConsumeIfValid atomically looks up, expiry-checks and removes a token in a
// single critical section. Concurrent calls for the same value see exactly
// one success; every later call gets domain.ErrTokenNotFound. An expired
// token is also removed so the error is stable across retries.
func (s *TokenStore) ConsumeIfValid(value string, now time.Time) (*domain.HandoffToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, found := s.entries[value]
	if !found {
		return nil, domain.ErrTokenNotFound
	}
	delete(s.entries, value)

	if now.After(token.ExpiresAt) {
		return nil, domain.ErrTokenExpired
	}
	return &token, nil
}

// Len reports the number of pending tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop terminates the sweep loop.
func (s *TokenStore) Stop() {
	close(s.done)
}

func (s *TokenStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for value, token := range s.entries {
		if now.After(token.ExpiresAt) {
			delete(s.entries, value)
		}
	}
}

func (s *TokenStore) sweepLoop(ticker clockwork.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.sweep()
		case <-s.done:
			return
		}
	}
}
