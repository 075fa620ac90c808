package auth

import (
	"sync"
	"time"
)

// RevocationList holds the ids of session tokens ended by logout. An entry
// is kept until the token would have expired anyway.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewRevocationList starts a list that drops expired entries every interval.
func NewRevocationList(interval time.Duration) *RevocationList {
	l := &RevocationList{
		entries: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go l.sweepLoop(interval)
	return l
}

func (l *RevocationList) Revoke(jti string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[jti] = expiresAt
}

func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[jti]
	return ok
}

func (l *RevocationList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close stops the sweeper. It is safe to call more than once.
func (l *RevocationList) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *RevocationList) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *RevocationList) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for jti, exp := range l.entries {
		if now.After(exp) {
			delete(l.entries, jti)
		}
	}
}
