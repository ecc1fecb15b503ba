package usage

import (
	"context"
	"sync"
	"time"

	"promptgate/internal/llm"
)

type memoryEntry struct {
	totals    Totals
	expiresAt time.Time
}

// MemoryLedger keeps totals in process. Rows not written for the retention
// period are dropped by a background janitor.
type MemoryLedger struct {
	mu              sync.RWMutex
	items           map[string]memoryEntry
	retention       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
	cleanupInterval time.Duration
}

// NewMemoryLedger creates an in-memory ledger. A retention <= 0 defaults to
// 24h; the janitor runs every retention/4 (at least every minute).
func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	interval := retention / 4
	if interval > time.Minute {
		interval = time.Minute
	}

	l := &MemoryLedger{
		items:           make(map[string]memoryEntry),
		retention:       retention,
		stopCleanup:     make(chan struct{}),
		cleanupInterval: interval,
	}

	go l.cleanupExpired()

	return l
}

func (l *MemoryLedger) Record(_ context.Context, key Key, u llm.Usage) error {
	k := key.String()

	l.mu.Lock()
	entry := l.items[k]
	entry.totals.Provider = key.Provider
	entry.totals.Model = key.ModelID
	entry.totals.add(u)
	entry.expiresAt = time.Now().Add(l.retention)
	l.items[k] = entry
	l.mu.Unlock()

	return nil
}

func (l *MemoryLedger) Totals(_ context.Context, key Key) (Totals, bool, error) {
	l.mu.RLock()
	entry, ok := l.items[key.String()]
	l.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return Totals{}, false, nil
	}
	return entry.totals, true, nil
}

// cleanupExpired runs periodically to remove idle rows.
func (l *MemoryLedger) cleanupExpired() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for k, v := range l.items {
				if now.After(v.expiresAt) {
					delete(l.items, k)
				}
			}
			l.mu.Unlock()
		case <-l.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. Call this on shutdown or in tests.
func (l *MemoryLedger) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// Len returns the number of rows currently held.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
