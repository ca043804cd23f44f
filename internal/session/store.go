// internal/session/store.go
package session

import (
	"bookshare/internal/booking"
	"bookshare/internal/catalog"
	"sync"
)

// State is the client-side view state of one user.
type State struct {
	Selection  *booking.SelectionSet
	Filters    catalog.Filters
	Pagination catalog.Pagination
	// Books is the catalog snapshot of the last fetch, in display order.
	Books []catalog.Book
	// Stale lists books changed server-side since they were fetched.
	Stale map[string]bool
}

// NewState is the state of a freshly loaded page.
func NewState() State {
	return State{
		Selection:  booking.NewSelectionSet(),
		Filters:    catalog.DefaultFilters(),
		Pagination: catalog.DefaultPagination(),
		Books:      []catalog.Book{},
		Stale:      map[string]bool{},
	}
}

// clone returns a deep copy of s that shares no mutable memory with it.
func (s State) clone() State {
	c := s
	c.Selection = s.Selection.Clone()
	c.Books = make([]catalog.Book, len(s.Books))
	for i, b := range s.Books {
		c.Books[i] = cloneBook(b)
	}
	c.Stale = make(map[string]bool, len(s.Stale))
	for id, v := range s.Stale {
		c.Stale[id] = v
	}
	return c
}

func cloneBook(b catalog.Book) catalog.Book {
	if b.Bookings != nil {
		bookings := make([]catalog.Booking, len(b.Bookings))
		copy(bookings, b.Bookings)
		b.Bookings = bookings
	}
	return b
}

// Action is a reducer step applied to the state under the store lock.
type Action func(*State)

var _ booking.SelectionStore = (*Store)(nil)

// Store owns the state of one user. All changes go through Dispatch.
type Store struct {
	mu    sync.Mutex
	state State

	checkout sync.Mutex
}

func NewStore() *Store {
	return &Store{state: NewState()}
}

// Dispatch applies actions in order as one atomic update.
func (s *Store) Dispatch(actions ...Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actions {
		a(&s.state)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Selection returns a copy of the current selection.
func (s *Store) Selection() *booking.SelectionSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Selection.Clone()
}

// HasBook reports whether the snapshot holds the book.
func (s *Store) HasBook(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.state.Books {
		if b.ID == id {
			return true
		}
	}
	return false
}

// BeginCheckout claims the store for one checkout. It reports false while
// another checkout of the same user is in flight; otherwise the caller must
// call release when the batch has settled.
func (s *Store) BeginCheckout() (release func(), ok bool) {
	if !s.checkout.TryLock() {
		return nil, false
	}
	return s.checkout.Unlock, true
}

func (s *Store) RemoveSelected(ids ...string) { s.Dispatch(RemoveSelected(ids...)) }

func (s *Store) ClearSelection() { s.Dispatch(ClearSelection()) }

// Toggle selects or deselects a book.
func Toggle(bookID string, target booking.Toggle) Action {
	return func(st *State) { st.Selection.Toggle(bookID, target) }
}

// RemoveSelected drops the given books from the selection.
func RemoveSelected(ids ...string) Action {
	return func(st *State) { st.Selection.Remove(ids...) }
}

func ClearSelection() Action {
	return func(st *State) { st.Selection.Clear() }
}

// SetFilters replaces the filters and goes back to the first page.
func SetFilters(f catalog.Filters) Action {
	return func(st *State) {
		st.Filters = f
		st.Pagination.Page = catalog.DefaultPage
	}
}

// SetPage moves to page with the given limit; zero values keep the current
// setting.
func SetPage(page, limit int) Action {
	return func(st *State) {
		p := st.Pagination
		if page != 0 {
			p.Page = page
		}
		if limit != 0 {
			p.Limit = limit
		}
		st.Pagination = p.Normalize()
	}
}

// ReplaceBooks installs a freshly fetched page. Everything in it is fresh.
func ReplaceBooks(page catalog.BookPage) Action {
	return func(st *State) {
		st.Books = make([]catalog.Book, len(page.Books))
		for i, b := range page.Books {
			st.Books[i] = cloneBook(b)
		}
		st.Pagination = page.Pagination().Normalize()
		st.Stale = map[string]bool{}
	}
}

// UpsertBooks replaces books already in the snapshot by id and appends the
// rest. Upserted books are no longer stale.
func UpsertBooks(books ...catalog.Book) Action {
	return func(st *State) {
		for _, b := range books {
			b = cloneBook(b)
			delete(st.Stale, b.ID)
			replaced := false
			for i := range st.Books {
				if st.Books[i].ID == b.ID {
					st.Books[i] = b
					replaced = true
					break
				}
			}
			if !replaced {
				st.Books = append(st.Books, b)
			}
		}
	}
}

// MarkStale flags books whose snapshot no longer matches the server.
func MarkStale(ids ...string) Action {
	return func(st *State) {
		for _, id := range ids {
			st.Stale[id] = true
		}
	}
}
