// internal/web/handler.go
package web

import (
	"bookshare/internal/apierror"
	"bookshare/internal/booking"
	"bookshare/internal/catalog"
	"bookshare/internal/session"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// CatalogReader reads books from the catalog.
type CatalogReader interface {
	ListBooks(ctx context.Context, q catalog.BookQuery) (*catalog.BookPage, error)
	GetBook(ctx context.Context, id string) (*catalog.Book, error)
}

// Handler serves the booking workflow API.
type Handler struct {
	service  booking.Service
	books    CatalogReader
	sessions *session.Registry
	logger   *slog.Logger
}

func NewHandler(service booking.Service, books CatalogReader, sessions *session.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		books:    books,
		sessions: sessions,
		logger:   logger,
	}
}

// Routes registers the workflow endpoints on r. Every route requires an
// authenticated user.
func (h *Handler) Routes(r chi.Router, auth Authenticator) {
	r.Use(Identity(auth, h.logger))

	r.Get("/books", h.ListBooks)
	r.Get("/books/{id}", h.GetBook)

	r.Get("/selection", h.GetSelection)
	r.Post("/selection", h.ToggleSelection)
	r.Delete("/selection", h.ClearSelection)

	r.Get("/booking-points", h.BookingPoints)
	r.Post("/checkout", h.Checkout)
	r.Delete("/session", h.EndSession)

	r.Get("/bookings", h.ListBookings)
	r.Post("/bookings/{id}/return", h.ReturnBooking)
	r.Delete("/bookings/{id}", h.CancelBooking)
}

type bookView struct {
	Book    catalog.Book    `json:"book"`
	Display booking.Display `json:"display"`
	// Stale is set when the last refresh of this book failed.
	Stale bool `json:"stale"`
}

type selectionView struct {
	IDs  []string `json:"ids"`
	Size int      `json:"size"`
}

type bookingView struct {
	catalog.Booking
	StatusLabel string `json:"status_label"`
}

func newBookView(b catalog.Book, userID string, st session.State) bookView {
	return bookView{
		Book:    b,
		Display: booking.DeriveStatus(b, userID, st.Selection),
		Stale:   st.Stale[b.ID],
	}
}

func staleIDs(st session.State) []string {
	ids := make([]string, 0, len(st.Stale))
	for id, stale := range st.Stale {
		if stale {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func newSelectionView(s *booking.SelectionSet) selectionView {
	return selectionView{IDs: s.IDs(), Size: s.Len()}
}

func newBookingView(b catalog.Booking) bookingView {
	return bookingView{Booking: b, StatusLabel: b.Status.Label()}
}

// current returns the acting user and their store.
func (h *Handler) current(r *http.Request) (*catalog.User, *session.Store) {
	user, _ := UserFrom(r.Context())
	return user, h.sessions.For(user.ID)
}

// ListBooks fetches a catalog page using the stored filters, updated by any
// filter or paging parameters on the request.
// GET /api/books
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	user, store := h.current(r)
	q := r.URL.Query()

	var actions []session.Action
	if filters, changed := mergeFilters(store.Snapshot().Filters, q); changed {
		actions = append(actions, session.SetFilters(filters))
	}
	page, limit, err := parsePaging(q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if page != 0 || limit != 0 {
		actions = append(actions, session.SetPage(page, limit))
	}
	store.Dispatch(actions...)

	st := store.Snapshot()
	result, err := h.books.ListBooks(r.Context(), catalog.BookQuery{
		Filters: st.Filters,
		Page:    st.Pagination.Page,
		Limit:   st.Pagination.Limit,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	store.Dispatch(session.ReplaceBooks(*result))
	st = store.Snapshot()

	views := make([]bookView, 0, len(st.Books))
	for _, b := range st.Books {
		views = append(views, newBookView(b, user.ID, st))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books":      views,
		"pagination": st.Pagination,
		"filters":    st.Filters,
		"selection":  newSelectionView(st.Selection),
	})
}

// GetBook fetches one book and updates it in the snapshot.
// GET /api/books/{id}
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	user, store := h.current(r)

	book, err := h.books.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	store.Dispatch(session.UpsertBooks(*book))

	writeJSON(w, http.StatusOK, newBookView(*book, user.ID, store.Snapshot()))
}

// GET /api/selection
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	_, store := h.current(r)
	writeJSON(w, http.StatusOK, newSelectionView(store.Selection()))
}

// ToggleSelection selects or deselects one book.
// POST /api/selection
func (h *Handler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	_, store := h.current(r)

	var req struct {
		BookID string `json:"book_id"`
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID == "" {
		writeError(w, h.logger, apierror.NewValidationError("book_id", "book_id is required"))
		return
	}
	target, err := booking.ParseToggle(req.Action)
	if err != nil {
		writeError(w, h.logger, apierror.NewValidationError("action", err.Error()))
		return
	}

	store.Dispatch(session.Toggle(req.BookID, target))
	writeJSON(w, http.StatusOK, newSelectionView(store.Selection()))
}

// DELETE /api/selection
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	_, store := h.current(r)
	store.ClearSelection()
	writeJSON(w, http.StatusOK, newSelectionView(store.Selection()))
}

// GET /api/booking-points
func (h *Handler) BookingPoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.BookingPoints(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// EndSession drops the caller's selection, filters and snapshot.
// DELETE /api/session
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	h.sessions.Drop(user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Checkout reserves every selected book. A partially failed batch answers
// 207 with the full result. Only one checkout per user runs at a time.
// POST /api/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, store := h.current(r)

	var trip booking.Trip
	if err := json.NewDecoder(r.Body).Decode(&trip); err != nil {
		if errors.Is(err, catalog.ErrInvalidDate) {
			writeError(w, h.logger, apierror.NewValidationError("trip", "dates must use the YYYY-MM-DD format"))
			return
		}
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	release, ok := store.BeginCheckout()
	if !ok {
		writeDetail(w, http.StatusConflict, "a checkout is already in progress")
		return
	}
	defer release()

	result, err := h.service.Checkout(r.Context(), user.ID, store, trip)
	var be *apierror.BatchError
	switch {
	case errors.As(err, &be):
		writeJSON(w, http.StatusMultiStatus, map[string]any{
			"detail":    be.Error(),
			"result":    result,
			"selection": newSelectionView(store.Selection()),
			"stale":     staleIDs(store.Snapshot()),
		})
	case err != nil:
		writeError(w, h.logger, err)
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"detail":    fmt.Sprintf("reserved %d books", result.Succeeded),
			"result":    result,
			"selection": newSelectionView(store.Selection()),
			"stale":     staleIDs(store.Snapshot()),
		})
	}
}

// ListBookings lists the acting user's bookings.
// GET /api/bookings
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, err := parsePaging(q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.service.MyBookings(r.Context(), catalog.BookingQuery{
		Status: catalog.BookingStatus(q.Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]bookingView, 0, len(result.Bookings))
	for _, b := range result.Bookings {
		views = append(views, newBookingView(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": views,
		"total":    result.Total,
		"page":     result.Page,
		"limit":    result.Limit,
		"pages":    result.Pages,
	})
}

// POST /api/bookings/{id}/return
func (h *Handler) ReturnBooking(w http.ResponseWriter, r *http.Request) {
	user, _ := h.current(r)

	b, err := h.service.Return(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingView(*b))
}

// DELETE /api/bookings/{id}
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	user, _ := h.current(r)

	if err := h.service.Cancel(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mergeFilters overlays the filter parameters present in q onto current.
func mergeFilters(current catalog.Filters, q url.Values) (catalog.Filters, bool) {
	next := current
	if q.Has("search") {
		next.Search = q.Get("search")
	}
	if q.Has("genre") {
		next.Genre = q.Get("genre")
	}
	if q.Has("author") {
		next.Author = q.Get("author")
	}
	if q.Has("owner_id") {
		next.OwnerID = q.Get("owner_id")
	}
	if q.Has("available_only") {
		if v, err := strconv.ParseBool(q.Get("available_only")); err == nil {
			next.AvailableOnly = v
		}
	}
	return next, next != current
}

func parsePaging(q url.Values) (page, limit int, err error) {
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, apierror.NewValidationError("page", "page must be a positive integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > catalog.MaxLimit {
			return 0, 0, apierror.NewValidationError("limit", fmt.Sprintf("limit must be between 1 and %d", catalog.MaxLimit))
		}
	}
	return page, limit, nil
}
