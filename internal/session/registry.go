// internal/session/registry.go
package session

import (
	"bookshare/internal/booking"
	"bookshare/internal/catalog"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Registry owns one Store per acting user. A store lives from the user's
// first request until it is dropped or evicted for being idle.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*entry
	now    func() time.Time
}

type entry struct {
	store    *Store
	lastSeen time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now for idle tracking.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		stores: make(map[string]*entry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// For returns the store of userID, creating an empty one on first use, and
// marks the user as active.
func (r *Registry) For(userID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[userID]
	if !ok {
		e = &entry{store: NewStore()}
		r.stores[userID] = e
	}
	e.lastSeen = r.now()
	return e.store
}

// Lookup returns the store of userID without creating it or marking the
// user as active.
func (r *Registry) Lookup(userID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[userID]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// Drop discards the state of userID.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, userID)
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Evict drops every store not used for longer than idle and returns the
// evicted user ids.
func (r *Registry) Evict(idle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)
	var evicted []string
	for id, e := range r.stores {
		if e.lastSeen.Before(cutoff) {
			delete(r.stores, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Janitor evicts idle stores every interval until ctx is done.
func (r *Registry) Janitor(ctx context.Context, idle, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = idle
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := r.Evict(idle); len(evicted) > 0 {
				logger.Info("evicted idle sessions", "count", len(evicted), "live", r.Len())
			}
		}
	}
}

// BookReader fetches a single book.
type BookReader interface {
	GetBook(ctx context.Context, id string) (*catalog.Book, error)
}

var _ booking.RefreshListener = (*Refresher)(nil)

// Refresher brings the snapshot of changed books up to date. Books outside
// the snapshot are skipped; books that cannot be re-fetched stay stale.
type Refresher struct {
	registry *Registry
	books    BookReader
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewRefresher(registry *Registry, books BookReader, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		registry: registry,
		books:    books,
		logger:   logger,
		tracer:   otel.Tracer("bookshare/session"),
	}
}

func (r *Refresher) Refresh(ctx context.Context, userID string, bookIDs []string) {
	store, ok := r.registry.Lookup(userID)
	if !ok {
		return
	}
	cached := make([]string, 0, len(bookIDs))
	for _, id := range bookIDs {
		if store.HasBook(id) {
			cached = append(cached, id)
		}
	}
	if len(cached) == 0 {
		return
	}

	ctx, span := r.tracer.Start(ctx, "session.refresh",
		trace.WithAttributes(attribute.StringSlice("book.ids", cached)),
	)
	defer span.End()

	store.Dispatch(MarkStale(cached...))

	fresh := make([]catalog.Book, 0, len(cached))
	for _, id := range cached {
		book, err := r.books.GetBook(ctx, id)
		if err != nil {
			span.RecordError(err)
			r.logger.WarnContext(ctx, "refresh failed", "user_id", userID, "book_id", id, "error", err)
			continue
		}
		fresh = append(fresh, *book)
	}
	if len(fresh) > 0 {
		store.Dispatch(UpsertBooks(fresh...))
	}
	span.SetAttributes(attribute.Int("refresh.stale", len(cached)-len(fresh)))
}
