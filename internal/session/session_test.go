package session

import (
	"bookshare/internal/apierror"
	"bookshare/internal/booking"
	"bookshare/internal/catalog"
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_Defaults(t *testing.T) {
	st := NewStore().Snapshot()

	assert.Equal(t, 0, st.Selection.Len())
	assert.True(t, st.Filters.AvailableOnly)
	assert.Equal(t, catalog.Pagination{Page: 1, Limit: 20}, st.Pagination)
	assert.Empty(t, st.Books)
	assert.Empty(t, st.Stale)
}

func TestStore_SelectionActions(t *testing.T) {
	s := NewStore()

	s.Dispatch(
		Toggle("book-1", booking.Select),
		Toggle("book-2", booking.Select),
		Toggle("book-3", booking.Select),
		Toggle("book-3", booking.Deselect),
	)
	assert.Equal(t, []string{"book-1", "book-2"}, s.Selection().IDs())

	s.RemoveSelected("book-1")
	assert.Equal(t, []string{"book-2"}, s.Selection().IDs())

	s.ClearSelection()
	assert.Equal(t, 0, s.Selection().Len())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Dispatch(
		Toggle("book-1", booking.Select),
		ReplaceBooks(catalog.BookPage{
			Books: []catalog.Book{{ID: "book-1", Bookings: []catalog.Booking{{ID: "bk-1", Status: catalog.StatusPending}}}},
			Page:  1, Limit: 20, Total: 1, Pages: 1,
		}),
	)

	snap := s.Snapshot()
	snap.Selection.Toggle("book-9", booking.Select)
	snap.Books[0].Bookings[0].Status = catalog.StatusCancelled
	snap.Stale["book-1"] = true

	fresh := s.Snapshot()
	assert.Equal(t, []string{"book-1"}, fresh.Selection.IDs())
	assert.Equal(t, catalog.StatusPending, fresh.Books[0].Bookings[0].Status)
	assert.Empty(t, fresh.Stale)
}

func TestStore_FiltersAndPaging(t *testing.T) {
	s := NewStore()

	s.Dispatch(SetPage(3, 50))
	assert.Equal(t, catalog.Pagination{Page: 3, Limit: 50}, s.Snapshot().Pagination)

	s.Dispatch(SetFilters(catalog.Filters{Genre: "poetry"}))
	st := s.Snapshot()
	assert.Equal(t, catalog.Filters{Genre: "poetry"}, st.Filters)
	assert.Equal(t, 1, st.Pagination.Page, "new filters go back to the first page")
	assert.Equal(t, 50, st.Pagination.Limit)

	s.Dispatch(SetPage(0, 1000))
	assert.Equal(t, catalog.MaxLimit, s.Snapshot().Pagination.Limit)
}

func TestStore_UpsertAndStale(t *testing.T) {
	s := NewStore()
	s.Dispatch(ReplaceBooks(catalog.BookPage{
		Books: []catalog.Book{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}},
		Page:  2, Limit: 2, Total: 4, Pages: 2,
	}))
	assert.Equal(t, catalog.Pagination{Page: 2, Limit: 2, Total: 4, Pages: 2}, s.Snapshot().Pagination)

	s.Dispatch(MarkStale("a", "b"))
	s.Dispatch(UpsertBooks(catalog.Book{ID: "a", Title: "A2"}, catalog.Book{ID: "c", Title: "C"}))

	st := s.Snapshot()
	require.Len(t, st.Books, 3)
	assert.Equal(t, "A2", st.Books[0].Title)
	assert.Equal(t, "c", st.Books[2].ID)
	assert.Equal(t, map[string]bool{"b": true}, st.Stale)

	s.Dispatch(ReplaceBooks(catalog.BookPage{Page: 1, Limit: 20}))
	assert.Empty(t, s.Snapshot().Stale)
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Dispatch(Toggle(fmt.Sprintf("book-%d", i), booking.Select))
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, s.Selection().Len())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a := r.For("alice")
	assert.Same(t, a, r.For("alice"))
	assert.NotSame(t, a, r.For("bob"))
	assert.Equal(t, 2, r.Len())

	a.Dispatch(Toggle("book-1", booking.Select))
	r.Drop("alice")

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 0, r.For("alice").Selection().Len(), "a dropped user starts over")
}

func TestRegistry_EvictsIdleStores(t *testing.T) {
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(WithClock(func() time.Time { return now }))

	r.For("alice").Dispatch(Toggle("book-1", booking.Select))
	now = now.Add(20 * time.Minute)
	r.For("bob")
	now = now.Add(15 * time.Minute)

	assert.Equal(t, []string{"alice"}, r.Evict(30*time.Minute))
	assert.Equal(t, 1, r.Len())
	_, ok := r.Lookup("alice")
	assert.False(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, []string{"bob"}, r.Evict(30*time.Minute))
	assert.Zero(t, r.Len())
}

func TestRegistry_LookupDoesNotCreateOrTouch(t *testing.T) {
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(WithClock(func() time.Time { return now }))

	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	created := r.For("alice")
	now = now.Add(time.Hour)
	found, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, created, found)
	assert.Equal(t, []string{"alice"}, r.Evict(30*time.Minute), "lookup keeps the idle clock running")
}

func TestRegistry_JanitorStopsWithContext(t *testing.T) {
	r := NewRegistry()
	r.For("alice")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		r.Janitor(ctx, time.Nanosecond, time.Millisecond, nil)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestStore_BeginCheckoutIsExclusive(t *testing.T) {
	s := NewStore()

	release, ok := s.BeginCheckout()
	require.True(t, ok)
	_, ok = s.BeginCheckout()
	assert.False(t, ok, "a second checkout waits for the first")

	release()
	release, ok = s.BeginCheckout()
	require.True(t, ok)
	release()
}

type bookReaderFunc func(ctx context.Context, id string) (*catalog.Book, error)

func (f bookReaderFunc) GetBook(ctx context.Context, id string) (*catalog.Book, error) {
	return f(ctx, id)
}

func TestRefresher(t *testing.T) {
	r := NewRegistry()
	store := r.For("me")
	store.Dispatch(ReplaceBooks(catalog.BookPage{
		Books: []catalog.Book{
			{ID: "book-1", IsAvailable: true},
			{ID: "book-2", IsAvailable: true},
		},
		Page: 1, Limit: 20, Total: 2, Pages: 1,
	}))

	var fetched []string
	refresher := NewRefresher(r, bookReaderFunc(func(_ context.Context, id string) (*catalog.Book, error) {
		fetched = append(fetched, id)
		if id == "book-2" {
			return nil, &apierror.RequestFailure{StatusCode: http.StatusServiceUnavailable}
		}
		return &catalog.Book{ID: id, IsAvailable: true, Bookings: []catalog.Booking{
			{ID: "bk-1", BookID: id, BorrowerID: "me", Status: catalog.StatusPending},
		}}, nil
	}), nil)

	refresher.Refresh(context.Background(), "me", []string{"book-1", "book-2", "not-cached"})

	assert.Equal(t, []string{"book-1", "book-2"}, fetched)
	st := store.Snapshot()
	require.Len(t, st.Books, 2)
	assert.Len(t, st.Books[0].Bookings, 1)
	assert.Equal(t, map[string]bool{"book-2": true}, st.Stale)
}

func TestRefresher_SkipsUnknownUsers(t *testing.T) {
	r := NewRegistry()
	refresher := NewRefresher(r, bookReaderFunc(func(context.Context, string) (*catalog.Book, error) {
		t.Fatal("no fetch expected")
		return nil, nil
	}), nil)

	refresher.Refresh(context.Background(), "gone", []string{"book-1"})

	assert.Zero(t, r.Len(), "refreshing does not resurrect a dropped session")
}
