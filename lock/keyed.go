package lock

import (
	"context"
	"sync"
)

// KeyedMutex is the in-process Locker used when no redis is configured.
// Entries are dropped once nobody holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (k *KeyedMutex) acquireSlot(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) releaseSlot(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	s := k.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return k.unlocker(key, s), nil
	case <-ctx.Done():
		k.releaseSlot(key, s)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) TryLock(_ context.Context, key string) (func(), error) {
	s := k.acquireSlot(key)
	select {
	case s.ch <- struct{}{}:
		return k.unlocker(key, s), nil
	default:
		k.releaseSlot(key, s)
		return nil, ErrNotAcquired
	}
}

func (k *KeyedMutex) unlocker(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.releaseSlot(key, s)
		})
	}
}

// Len reports how many keys are currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
