// Package pagination accumulates cursor-paginated server collections and
// keeps them consistent across refetches, load-more requests and
// invalidations pushed from the realtime stream.
package pagination

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

// Page is one server page. Meta carries page-level data outside the item
// list, such as the conversation sender; a collection reports the first
// page's Meta.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
	Meta       any
}

// Fetcher loads the page after cursor; an empty cursor is the first page.
type Fetcher[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Options tunes fetching.
type Options struct {
	// Retries is how many times a failed fetch is retried before the error
	// is surfaced.
	Retries    int
	RetryDelay time.Duration
}

// FetchError is a fetch that failed after all retries.
type FetchError struct {
	Key    string
	Cursor string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Cursor == "" {
		return "fetch " + e.Key + ": " + e.Err.Error()
	}
	return "fetch " + e.Key + " after " + e.Cursor + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// Snapshot is a consistent view of a collection.
type Snapshot[T any] struct {
	Items         []T
	Meta          any
	Pages         int
	HasMore       bool
	NextCursor    string
	Fetched       bool
	Loading       bool
	FetchingNext  bool
	Stale         bool
	Err           error
	UpdatedAt     time.Time
	ObserverCount int
}

// Collection is the accumulated pages of one key. Items are concatenated in
// fetch order with duplicate IDs dropped, first occurrence wins.
type Collection[T any] struct {
	key    string
	id     func(T) string
	opts   Options
	notify func(key string)
	idle   func()
	active func()

	group singleflight.Group

	mu           sync.Mutex
	fetch        Fetcher[T]
	pages        []Page[T]
	seen         map[string]struct{}
	gen          uint64
	fetched      bool
	stale        bool
	loading      bool
	fetchingNext bool
	err          error
	updatedAt    time.Time
	observers    int
}

// NewCollection creates an unfetched collection. id extracts the
// deduplication key of an item.
func NewCollection[T any](key string, fetch Fetcher[T], id func(T) string, opts Options) *Collection[T] {
	return &Collection[T]{
		key:   key,
		id:    id,
		opts:  opts,
		fetch: fetch,
		seen:  make(map[string]struct{}),
	}
}

// Key returns the collection key.
func (c *Collection[T]) Key() string { return c.key }

// SetFetcher replaces the fetch function used by later requests.
func (c *Collection[T]) SetFetcher(fetch Fetcher[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetch = fetch
}

// Refetch discards the accumulated pages and loads the first page again.
// When a newer Refetch starts before this one finishes, this result is
// dropped and nil is returned.
func (c *Collection[T]) Refetch(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.loading = true
	fetch := c.fetch
	c.mu.Unlock()
	c.changed()

	page, err := c.fetchWithRetry(ctx, fetch, "")

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.loading = false
	if err != nil {
		c.err = err
		c.mu.Unlock()
		c.changed()
		return err
	}
	c.seen = make(map[string]struct{})
	page.Items = c.dedupLocked(page.Items)
	c.pages = []Page[T]{page}
	c.fetched = true
	c.stale = false
	c.err = nil
	c.updatedAt = time.Now()
	c.mu.Unlock()
	c.changed()
	return nil
}

// LoadMore appends the page after the last loaded one. It is a no-op when
// the last page reported no more data. Concurrent calls for the same cursor
// share one request. Before the first page exists it loads that page, again
// once for all concurrent callers.
func (c *Collection[T]) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if len(c.pages) == 0 {
		c.mu.Unlock()
		_, err, _ := c.group.Do("first", func() (any, error) {
			return nil, c.Refetch(ctx)
		})
		return err
	}
	last := c.pages[len(c.pages)-1]
	if !last.HasMore {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	cursor := last.NextCursor
	c.mu.Unlock()

	_, err, _ := c.group.Do(strconv.FormatUint(gen, 10)+"/"+cursor, func() (any, error) {
		return nil, c.loadNext(ctx, gen, cursor)
	})
	return err
}

func (c *Collection[T]) loadNext(ctx context.Context, gen uint64, cursor string) error {
	c.mu.Lock()
	if gen != c.gen || c.lastCursorLocked() != cursor {
		c.mu.Unlock()
		return nil
	}
	c.fetchingNext = true
	fetch := c.fetch
	c.mu.Unlock()
	c.changed()

	page, err := c.fetchWithRetry(ctx, fetch, cursor)

	c.mu.Lock()
	c.fetchingNext = false
	// A refetch or another load-more moved the cursor while we waited.
	if gen != c.gen || c.lastCursorLocked() != cursor {
		c.mu.Unlock()
		c.changed()
		return nil
	}
	if err != nil {
		c.err = err
		c.mu.Unlock()
		c.changed()
		return err
	}
	page.Items = c.dedupLocked(page.Items)
	c.pages = append(c.pages, page)
	c.err = nil
	c.updatedAt = time.Now()
	c.mu.Unlock()
	c.changed()
	return nil
}

// Invalidate marks the data out of date. An observed collection refetches in
// the background under ctx; an unobserved one refetches on its next Observe.
func (c *Collection[T]) Invalidate(ctx context.Context) {
	c.mu.Lock()
	observed := c.observers > 0
	c.stale = true
	c.mu.Unlock()

	if observed {
		go func() {
			_ = c.Refetch(ctx)
		}()
	}
}

// Observe registers a consumer. It reports whether the caller should fetch,
// which is when nothing was fetched yet or the data went stale. Data kept
// while no one observed it is always stale: events for it were not followed.
func (c *Collection[T]) Observe() bool {
	c.mu.Lock()
	c.observers++
	first := c.observers == 1
	onActive := c.active
	need := !c.fetched || c.stale
	c.mu.Unlock()

	if first && onActive != nil {
		onActive()
	}
	return need
}

// Release drops a consumer registered with Observe. The last release marks
// the data stale so the next consumer refetches while still seeing the
// cached pages.
func (c *Collection[T]) Release() {
	c.mu.Lock()
	if c.observers > 0 {
		c.observers--
	}
	idle := c.observers == 0
	if idle && c.fetched {
		c.stale = true
	}
	onIdle := c.idle
	c.mu.Unlock()

	if idle && onIdle != nil {
		onIdle()
	}
}

// Observers returns the number of active consumers.
func (c *Collection[T]) Observers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observers
}

// Items returns the accumulated items.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemsLocked()
}

// HasMore reports the server flag of the most recently fetched page.
func (c *Collection[T]) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pages) == 0 {
		return false
	}
	return c.pages[len(c.pages)-1].HasMore
}

// Snapshot returns the collection state at one instant.
func (c *Collection[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot[T]{
		Items:         c.itemsLocked(),
		Pages:         len(c.pages),
		Fetched:       c.fetched,
		Loading:       c.loading,
		FetchingNext:  c.fetchingNext,
		Stale:         c.stale,
		Err:           c.err,
		UpdatedAt:     c.updatedAt,
		ObserverCount: c.observers,
	}
	if n := len(c.pages); n > 0 {
		last := c.pages[n-1]
		s.HasMore = last.HasMore
		s.NextCursor = last.NextCursor
		s.Meta = c.pages[0].Meta
	}
	return s
}

func (c *Collection[T]) itemsLocked() []T {
	n := 0
	for _, p := range c.pages {
		n += len(p.Items)
	}
	out := make([]T, 0, n)
	for _, p := range c.pages {
		out = append(out, p.Items...)
	}
	return out
}

func (c *Collection[T]) lastCursorLocked() string {
	if len(c.pages) == 0 {
		return ""
	}
	return c.pages[len(c.pages)-1].NextCursor
}

// dedupLocked drops items already present. Items without an ID are kept.
func (c *Collection[T]) dedupLocked(items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		id := c.id(it)
		if id != "" {
			if _, dup := c.seen[id]; dup {
				continue
			}
			c.seen[id] = struct{}{}
		}
		out = append(out, it)
	}
	return out
}

func (c *Collection[T]) fetchWithRetry(ctx context.Context, fetch Fetcher[T], cursor string) (Page[T], error) {
	var page Page[T]
	if fetch == nil {
		return page, &FetchError{Key: c.key, Cursor: cursor, Err: errors.New("no fetcher")}
	}

	if c.opts.Retries <= 0 {
		p, err := fetch(ctx, cursor)
		if err != nil {
			return Page[T]{}, &FetchError{Key: c.key, Cursor: cursor, Err: err}
		}
		return p, nil
	}

	delay := c.opts.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(c.opts.Retries), retry.NewConstant(delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := fetch(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		page = p
		return nil
	})
	if err != nil {
		return Page[T]{}, &FetchError{Key: c.key, Cursor: cursor, Err: err}
	}
	return page, nil
}

func (c *Collection[T]) changed() {
	if c.notify != nil {
		c.notify(c.key)
	}
}
