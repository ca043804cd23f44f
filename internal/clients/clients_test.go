package clients

import (
	"bookshare/internal/apierror"
	"bookshare/internal/catalog"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingClient_CreateBooking(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/bookings", r.URL.Path)
		gotHeader = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"id": "bk-1",
			"book_id": "book-1",
			"borrower_id": "user-1",
			"status": "PENDING",
			"booking_date": "2025-05-20T10:11:12.123456",
			"planned_pickup_date": "2025-06-01",
			"planned_return_date": "2025-06-10",
			"booking_point_id": "p1"
		}`))
	}))
	defer srv.Close()

	client := NewBookingClient(srv.URL+"/", Options{})
	ctx := WithCredentials(context.Background(), Credentials{Authorization: "Bearer tok"})

	booking, err := client.CreateBooking(ctx, catalog.NewBooking{
		BookID:            "book-1",
		PlannedPickupDate: catalog.MustParseDate("2025-06-01"),
		PlannedReturnDate: catalog.MustParseDate("2025-06-10"),
		BookingPointID:    "p1",
		Notes:             "after 6pm",
		IdempotencyKey:    "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"book_id":             "book-1",
		"planned_pickup_date": "2025-06-01",
		"planned_return_date": "2025-06-10",
		"booking_point_id":    "p1",
		"notes":               "after 6pm",
	}, gotBody)
	assert.Equal(t, "Bearer tok", gotHeader.Get("Authorization"))
	assert.Equal(t, "key-1", gotHeader.Get("Idempotency-Key"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))

	assert.Equal(t, "bk-1", booking.ID)
	assert.Equal(t, catalog.StatusPending, booking.Status)
	assert.Equal(t, "2025-06-10", booking.PlannedReturnDate.String())
	require.NotNil(t, booking.BookingDate)
	assert.Equal(t, 2025, booking.BookingDate.Year())
}

func TestBookingClient_CreateBooking_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Book is already booked"}`))
	}))
	defer srv.Close()

	client := NewBookingClient(srv.URL, Options{})
	_, err := client.CreateBooking(context.Background(), catalog.NewBooking{BookID: "book-2"})

	var rf *apierror.RequestFailure
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, http.StatusBadRequest, rf.StatusCode)
	assert.Equal(t, "Book is already booked", rf.Info.Message)
	assert.NotErrorIs(t, err, apierror.ErrTransport)
}

func TestBookingClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewBookingClient(url, Options{})
	_, err := client.CreateBooking(context.Background(), catalog.NewBooking{BookID: "book-1"})

	require.ErrorIs(t, err, apierror.ErrTransport)
	assert.Equal(t, apierror.GenericReason, apierror.Reason(err))
}

func TestBookingClient_UnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1, 2, 3]`))
	}))
	defer srv.Close()

	client := NewBookingClient(srv.URL, Options{})
	_, err := client.ListBookings(context.Background(), catalog.BookingQuery{})

	require.ErrorIs(t, err, apierror.ErrTransport)
}

func TestBookingClient_ReturnCancelAndList(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/bookings/bk-1/confirm-return":
			w.Write([]byte(`{"id":"bk-1","book_id":"book-1","borrower_id":"u1","status":"RETURNED","planned_pickup_date":"2025-06-01","planned_return_date":"2025-06-10"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/bookings/bk-2":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/bookings":
			assert.Equal(t, "TAKEN", r.URL.Query().Get("status"))
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			w.Write([]byte(`{"bookings":[{"id":"bk-3","borrower_id":"u1","status":"TAKEN","planned_pickup_date":"2025-06-01","planned_return_date":"2025-06-10"}],"total":21,"page":2,"limit":20,"pages":2}`))
		case r.Method == http.MethodGet && r.URL.Path == "/bookings/booking-points":
			w.Write([]byte(`[{"id":"p1","name":"Central","address":"Main st. 1","working_hours":"9-18","is_active":true}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewBookingClient(srv.URL, Options{})
	ctx := context.Background()

	returned, err := client.ConfirmReturn(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusReturned, returned.Status)

	require.NoError(t, client.CancelBooking(ctx, "bk-2"))

	page, err := client.ListBookings(ctx, catalog.BookingQuery{Status: catalog.StatusTaken, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 1)
	assert.Equal(t, 21, page.Total)

	points, err := client.BookingPoints(ctx)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Central", points[0].Name)

	assert.Equal(t, []string{
		"POST /bookings/bk-1/confirm-return",
		"DELETE /bookings/bk-2",
		"GET /bookings",
		"GET /bookings/booking-points",
	}, calls)
}

func TestCatalogClient_ListBooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/books", r.URL.Path)
		assert.Equal(t, "dune", q.Get("search"))
		assert.Equal(t, "true", q.Get("available_only"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "100", q.Get("limit"))
		assert.False(t, q.Has("genre"))

		w.Write([]byte(`{"books":[{
			"id":"book-1","title":"Dune","author":"Frank Herbert","owner_id":"u9",
			"is_available":true,"is_active":true,
			"bookings":[{"id":"bk-1","borrower_id":"u1","status":"TAKEN","planned_pickup_date":"2025-06-01","planned_return_date":"2025-06-10"}]
		}],"total":1,"page":1,"limit":100,"pages":1}`))
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, Options{})
	page, err := client.ListBooks(context.Background(), catalog.BookQuery{
		Filters: catalog.Filters{Search: "dune", AvailableOnly: true},
		Limit:   500,
	})
	require.NoError(t, err)
	require.Len(t, page.Books, 1)

	book := page.Books[0]
	require.Len(t, book.Bookings, 1)
	assert.Equal(t, "book-1", book.Bookings[0].BookID)
	assert.Equal(t, catalog.Pagination{Page: 1, Limit: 100, Total: 1, Pages: 1}, page.Pagination())
}

func TestCatalogClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Book not found"}`))
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, Options{})
	for i := 0; i < 10; i++ {
		_, err := client.GetBook(context.Background(), "missing")
		var rf *apierror.RequestFailure
		require.ErrorAs(t, err, &rf)
		assert.True(t, rf.NotFound())
	}
	assert.Equal(t, int32(10), hits.Load())
}

func TestCatalogClient_ServerErrorsOpenBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, Options{})
	for i := 0; i < 5; i++ {
		_, err := client.GetBook(context.Background(), "book-1")
		require.Error(t, err)
	}

	_, err := client.GetBook(context.Background(), "book-1")
	require.ErrorIs(t, err, apierror.ErrTransport)
	assert.Equal(t, int32(5), hits.Load())
}

func TestAuthClient_Me(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "session=abc" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Not authenticated"}`))
			return
		}
		w.Write([]byte(`{"id":"user-1","username":"reader"}`))
	}))
	defer srv.Close()

	client := NewAuthClient(srv.URL, Options{})

	_, err := client.Me(context.Background())
	var rf *apierror.RequestFailure
	require.ErrorAs(t, err, &rf)
	assert.True(t, rf.Unauthorized())

	ctx := WithCredentials(context.Background(), Credentials{Cookie: "session=abc"})
	user, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 10))

	l := NewLimiter(5, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}
