package pagination

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/c-pro/geche"
)

// Well-known collection keys.
const (
	KeyChats = "chats"
)

// MessagesKey is the collection key of one chat's messages.
func MessagesKey(chatID string) string { return "messages/" + chatID }

// Notifier is told the key of every collection whose state changed.
type Notifier interface {
	Notify(key string)
}

type entry interface {
	Key() string
	Invalidate(ctx context.Context)
	Observers() int
}

// Store holds one Collection per key. Collections nobody observes are kept
// for the cache time so a consumer coming back within it reuses the loaded
// pages, then evicted.
type Store struct {
	ctx       context.Context
	opts      Options
	notifier  Notifier
	cacheTime time.Duration

	mu       sync.Mutex
	active   map[string]entry
	inactive geche.Geche[string, entry]
}

// NewStore creates a store. Background refetches and the eviction loop stop
// when ctx is done.
func NewStore(ctx context.Context, cacheTime time.Duration, opts Options, notifier Notifier) *Store {
	tick := cacheTime
	if tick <= 0 || tick > time.Minute {
		tick = time.Minute
	}
	ttl := cacheTime
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	return &Store{
		ctx:       ctx,
		opts:      opts,
		notifier:  notifier,
		cacheTime: cacheTime,
		active:    make(map[string]entry),
		inactive:  geche.NewMapTTLCache[string, entry](ctx, ttl, tick),
	}
}

// Use returns the collection for key, creating it on first use. A parked
// collection is revived with its pages intact. fetch replaces the fetcher of
// an existing collection. A key is bound to one item type; asking for it
// with another type replaces the collection.
func Use[T any](s *Store, key string, fetch Fetcher[T], id func(T) string) *Collection[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.active[key]; ok {
		if c, ok := e.(*Collection[T]); ok {
			c.SetFetcher(fetch)
			return c
		}
	}
	if e, err := s.inactive.Get(key); err == nil {
		_ = s.inactive.Del(key)
		if c, ok := e.(*Collection[T]); ok {
			c.SetFetcher(fetch)
			s.active[key] = c
			return c
		}
	}

	c := NewCollection(key, fetch, id, s.opts)
	c.notify = s.notify
	c.idle = func() { s.park(c) }
	c.active = func() { s.adopt(c) }
	s.active[key] = c
	return c
}

// Peek returns the collection for key without creating it.
func Peek[T any](s *Store, key string) (*Collection[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.active[key]; ok {
		c, ok := e.(*Collection[T])
		return c, ok
	}
	if e, err := s.inactive.Get(key); err == nil {
		c, ok := e.(*Collection[T])
		return c, ok
	}
	return nil, false
}

// Invalidate marks key stale. Observed collections refetch right away.
// Unknown keys are ignored.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	e, ok := s.active[key]
	if !ok {
		if v, err := s.inactive.Get(key); err == nil {
			e, ok = v, true
		}
	}
	s.mu.Unlock()

	if ok {
		e.Invalidate(s.ctx)
	}
}

// Keys lists every cached key, active or parked.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.active)+s.inactive.Len())
	for k := range s.active {
		keys = append(keys, k)
	}
	for k := range s.inactive.Snapshot() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear drops every collection that has no observers.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.active {
		if e.Observers() == 0 {
			delete(s.active, k)
		}
	}
	for k := range s.inactive.Snapshot() {
		_ = s.inactive.Del(k)
	}
}

func (s *Store) park(e entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.active[e.Key()]
	if !ok || cur != e || e.Observers() > 0 {
		return
	}
	delete(s.active, e.Key())
	if s.cacheTime > 0 {
		s.inactive.Set(e.Key(), e)
	}
}

// adopt makes e the active collection of its key again. A Release racing a
// Use can park a collection that the new consumer then observes.
func (s *Store) adopt(e entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.Key()
	if _, ok := s.active[key]; ok {
		return
	}
	_ = s.inactive.Del(key)
	s.active[key] = e
}

func (s *Store) notify(key string) {
	if s.notifier != nil {
		s.notifier.Notify(key)
	}
}
