// Package chatlist is the view model of the chat list: the paginated chats,
// a client-side search over what is loaded, and the unread summary.
package chatlist

import (
	"context"
	"strings"
	"sync"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
	"github.com/vovakirdan/yapper-sdk-go/yapper/pagination"
	"github.com/vovakirdan/yapper-sdk-go/yapper/rest"
)

// Topic is the change topic of the list view itself. Collection changes are
// published under pagination.KeyChats.
const Topic = "chatlist"

// Snapshot is what a presentation layer renders.
type Snapshot struct {
	Chats        []rest.Chat
	Search       string
	HasMore      bool
	Loading      bool
	FetchingNext bool
	Refreshing   bool
	Err          error
	Summary      *yapper.UnreadChatsSummary
}

// List is the chat list view model.
type List struct {
	host   yapper.Host
	logger yapper.Logger
	limit  int
	agg    *Aggregator

	mu         sync.Mutex
	coll       *pagination.Collection[rest.Chat]
	opened     bool
	closed     bool
	search     string
	refreshing bool
	err        error
}

// New creates an unmounted list.
func New(host yapper.Host) *List {
	return &List{
		host:   host,
		logger: host.Logger(),
		limit:  host.Config().ChatsPerPage,
		agg:    NewAggregator(host),
	}
}

// Open starts listening and loads the first page unless a fresh cached copy
// exists. A load failure is recorded and returned; the list stays reactive.
func (l *List) Open(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return yapper.ErrClosed
	}
	if l.opened {
		l.mu.Unlock()
		return nil
	}
	l.opened = true
	l.coll = pagination.Use(l.host.Queries(), pagination.KeyChats, l.fetchPage, chatID)
	needFetch := l.coll.Observe()
	coll := l.coll
	l.mu.Unlock()

	l.agg.Start()
	if !needFetch {
		return nil
	}
	return l.track(coll.Refetch(ctx), "load chats")
}

// Close stops listening. The loaded pages stay cached for reuse.
func (l *List) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	wasOpen := l.opened
	coll := l.coll
	l.mu.Unlock()

	if wasOpen {
		l.agg.Stop()
		coll.Release()
	}
	return nil
}

// Refresh reloads the list from the first page.
func (l *List) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if l.closed || l.coll == nil {
		l.mu.Unlock()
		return nil
	}
	l.refreshing = true
	coll := l.coll
	l.mu.Unlock()
	l.changed()

	err := coll.Refetch(ctx)

	l.mu.Lock()
	l.refreshing = false
	l.mu.Unlock()
	return l.track(err, "refresh chats")
}

// LoadMore fetches the next page. It does nothing while a search is active,
// when the server has no more chats, or while a page is already loading.
func (l *List) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	if l.closed || l.coll == nil || l.searchActiveLocked() {
		l.mu.Unlock()
		return nil
	}
	coll := l.coll
	l.mu.Unlock()

	snap := coll.Snapshot()
	if !snap.HasMore || snap.FetchingNext {
		return nil
	}
	return l.track(coll.LoadMore(ctx), "load more chats")
}

// SetSearch narrows Chats to participants matching q.
func (l *List) SetSearch(q string) {
	l.mu.Lock()
	l.search = q
	l.mu.Unlock()
	l.changed()
}

// Search returns the current search query.
func (l *List) Search() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.search
}

// Chats returns the loaded chats narrowed by the search query.
func (l *List) Chats() []rest.Chat {
	l.mu.Lock()
	coll, q := l.coll, l.search
	l.mu.Unlock()
	if coll == nil {
		return nil
	}
	return Filter(coll.Items(), q)
}

// HasMore reports whether LoadMore would fetch; always false while searching.
func (l *List) HasMore() bool {
	l.mu.Lock()
	coll, searching := l.coll, l.searchActiveLocked()
	l.mu.Unlock()
	if coll == nil || searching {
		return false
	}
	return coll.HasMore()
}

// IsRefreshing reports whether a user-initiated Refresh is running.
func (l *List) IsRefreshing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshing
}

// Summary returns the last unread summary pushed by the server.
func (l *List) Summary() (yapper.UnreadChatsSummary, bool) {
	return l.agg.Summary()
}

// Snapshot returns the current view state.
func (l *List) Snapshot() Snapshot {
	l.mu.Lock()
	coll := l.coll
	s := Snapshot{
		Search:     l.search,
		Refreshing: l.refreshing,
		Err:        l.err,
	}
	searching := l.searchActiveLocked()
	l.mu.Unlock()

	if coll != nil {
		cs := coll.Snapshot()
		s.Chats = Filter(cs.Items, s.Search)
		s.HasMore = cs.HasMore && !searching
		s.Loading = cs.Loading
		s.FetchingNext = cs.FetchingNext
		if s.Err == nil {
			s.Err = cs.Err
		}
	}
	if sum, ok := l.agg.Summary(); ok {
		s.Summary = &sum
	}
	return s
}

// Watch signals whenever the snapshot may have changed.
func (l *List) Watch(ctx context.Context) (<-chan struct{}, error) {
	changes := l.host.Changes()
	own, err := changes.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}
	chats, err := changes.Subscribe(ctx, pagination.KeyChats)
	if err != nil {
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for own != nil || chats != nil {
			select {
			case _, ok := <-own:
				if !ok {
					own = nil
					continue
				}
			case _, ok := <-chats:
				if !ok {
					chats = nil
					continue
				}
			}
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, nil
}

// Filter returns the chats whose participant name or username contains
// query, case-insensitively. A blank query returns chats unchanged.
func Filter(chats []rest.Chat, query string) []rest.Chat {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return chats
	}
	out := make([]rest.Chat, 0, len(chats))
	for _, c := range chats {
		if strings.Contains(strings.ToLower(c.Participant.Name), q) ||
			strings.Contains(strings.ToLower(c.Participant.Username), q) {
			out = append(out, c)
		}
	}
	return out
}

func (l *List) searchActiveLocked() bool {
	return strings.TrimSpace(l.search) != ""
}

func (l *List) track(err error, op string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	if err != nil {
		err = yapper.WrapError(yapper.ErrorFetch, op, err)
	}
	l.err = err
	l.mu.Unlock()
	l.changed()

	if err != nil {
		l.logger.Warn(op+" failed", map[string]any{"error": err.Error()})
	}
	return err
}

func (l *List) fetchPage(ctx context.Context, cursor string) (pagination.Page[rest.Chat], error) {
	page, err := l.host.API().GetChats(ctx, rest.ChatsParams{Limit: l.limit, Cursor: cursor})
	if err != nil {
		return pagination.Page[rest.Chat]{}, err
	}
	return pagination.Page[rest.Chat]{
		Items:      page.Chats,
		HasMore:    page.Pagination.HasMore,
		NextCursor: page.Pagination.NextCursor,
	}, nil
}

func (l *List) changed() {
	l.host.Changes().Notify(Topic)
}

func chatID(c rest.Chat) string { return c.ID }
