package booking

import (
	"bookshare/internal/apierror"
	"bookshare/internal/catalog"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakeAPI struct {
	fakeReserver
	points      []catalog.BookingPoint
	pointsErr   error
	pointsCalls int
	bookings    map[string]catalog.Booking
	cancelled   []string
	listQueries []catalog.BookingQuery
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		points:   testPoints,
		bookings: map[string]catalog.Booking{},
	}
}

func (f *fakeAPI) BookingPoints(context.Context) ([]catalog.BookingPoint, error) {
	f.pointsCalls++
	return f.points, f.pointsErr
}

func (f *fakeAPI) GetBooking(_ context.Context, id string) (*catalog.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, &apierror.RequestFailure{StatusCode: http.StatusNotFound, Info: apierror.ErrorInfo{Message: "Booking not found"}}
	}
	return &b, nil
}

func (f *fakeAPI) ListBookings(_ context.Context, q catalog.BookingQuery) (*catalog.BookingPage, error) {
	f.listQueries = append(f.listQueries, q)
	page := &catalog.BookingPage{Page: 1, Limit: 20}
	for _, b := range f.bookings {
		if q.Status == "" || b.Status == q.Status {
			page.Bookings = append(page.Bookings, b)
		}
	}
	page.Total = len(page.Bookings)
	return page, nil
}

func (f *fakeAPI) ConfirmReturn(_ context.Context, id string) (*catalog.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, &apierror.RequestFailure{StatusCode: http.StatusNotFound, Info: apierror.ErrorInfo{Message: "Booking not found"}}
	}
	b.Status = catalog.StatusReturned
	f.bookings[id] = b
	return &b, nil
}

func (f *fakeAPI) CancelBooking(_ context.Context, id string) error {
	if _, ok := f.bookings[id]; !ok {
		return &apierror.RequestFailure{StatusCode: http.StatusNotFound, Info: apierror.ErrorInfo{Message: "Booking not found"}}
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

// memSelection is a SelectionStore over a plain SelectionSet.
type memSelection struct {
	set     *SelectionSet
	cleared bool
}

func (m *memSelection) Selection() *SelectionSet { return m.set.Clone() }

func (m *memSelection) RemoveSelected(ids ...string) { m.set.Remove(ids...) }

func (m *memSelection) ClearSelection() {
	m.set.Clear()
	m.cleared = true
}

type refreshRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *refreshRecorder) Refresh(_ context.Context, userID string, bookIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{userID}, bookIDs...))
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 5, 20, 15, 0, 0, 0, time.UTC) }
}

func Test_Checkout_Success_ClearsSelectionAndRefreshes(t *testing.T) {
	// arrange
	api := newFakeAPI()
	refresh := &refreshRecorder{}
	svc := NewService(api, refresh, nil, WithClock(fixedClock()))
	sel := &memSelection{set: NewSelectionSet("book-1", "book-2")}

	// act
	result, err := svc.Checkout(context.Background(), "me", sel, validTrip())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 0, sel.set.Len())
	assert.True(t, sel.cleared)
	assert.Equal(t, [][]string{{"me", "book-1", "book-2"}}, refresh.calls)
}

func Test_Checkout_PartialFailure_KeepsOnlyFailedBooksSelected(t *testing.T) {
	// arrange
	api := newFakeAPI()
	api.reject = map[string]error{"book-2": alreadyBooked()}
	refresh := &refreshRecorder{}
	svc := NewService(api, refresh, nil, WithClock(fixedClock()))
	sel := &memSelection{set: NewSelectionSet("book-1", "book-2")}

	// act
	result, err := svc.Checkout(context.Background(), "me", sel, validTrip())

	// assert
	var be *apierror.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "failed to reserve 1 of 2 books", err.Error())
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "book-2", result.Failed[0].Request.BookID)
	assert.Equal(t, "Book is already booked", result.Failed[0].Reason)
	assert.Equal(t, []string{"book-2"}, sel.set.IDs())
	assert.False(t, sel.cleared)
	assert.Empty(t, refresh.calls)
}

func Test_Checkout_ValidationError_SendsNothing(t *testing.T) {
	tests := []struct {
		name string
		trip Trip
	}{
		{"pickup equals return", Trip{
			PickupDate:     catalog.MustParseDate("2025-06-01"),
			ReturnDate:     catalog.MustParseDate("2025-06-01"),
			BookingPointID: "p1",
		}},
		{"pickup in the past", Trip{
			PickupDate:     catalog.MustParseDate("2025-05-19"),
			ReturnDate:     catalog.MustParseDate("2025-06-01"),
			BookingPointID: "p1",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			svc := NewService(api, nil, nil, WithClock(fixedClock()))
			sel := &memSelection{set: NewSelectionSet("book-1", "book-2")}

			result, err := svc.Checkout(context.Background(), "me", sel, tt.trip)

			assert.Nil(t, result)
			var ve *apierror.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Empty(t, api.received)
			assert.Zero(t, api.pointsCalls, "local checks run before loading booking points")
			assert.Equal(t, 2, sel.set.Len())
		})
	}
}

func Test_Checkout_ValidationError_WhenBookingPointsAreDown(t *testing.T) {
	// arrange
	api := newFakeAPI()
	api.pointsErr = apierror.Transport("booking_points", errors.New("dial tcp: refused"))
	svc := NewService(api, nil, nil, WithClock(fixedClock()))
	sel := &memSelection{set: NewSelectionSet("book-1")}
	trip := Trip{
		PickupDate:     catalog.MustParseDate("2025-05-01"),
		ReturnDate:     catalog.MustParseDate("2025-05-01"),
		BookingPointID: "p1",
	}

	// act
	_, err := svc.Checkout(context.Background(), "me", sel, trip)

	// assert
	var ve *apierror.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "planned_pickup_date", ve.Field)
	assert.NotErrorIs(t, err, apierror.ErrTransport)
	assert.Zero(t, api.pointsCalls)
}

func Test_Checkout_UnknownPoint_IsCheckedAfterLoadingPoints(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api, nil, nil, WithClock(fixedClock()))
	sel := &memSelection{set: NewSelectionSet("book-1")}
	trip := validTrip()
	trip.BookingPointID = "p2"

	_, err := svc.Checkout(context.Background(), "me", sel, trip)

	var ve *apierror.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "booking_point_id", ve.Field)
	assert.Equal(t, 1, api.pointsCalls)
	assert.Empty(t, api.received)
}

func Test_Checkout_BookingPointsUnavailable(t *testing.T) {
	api := newFakeAPI()
	api.pointsErr = apierror.Transport("booking_points", errors.New("dial tcp: refused"))
	svc := NewService(api, nil, nil, WithClock(fixedClock()))
	sel := &memSelection{set: NewSelectionSet("book-1")}

	_, err := svc.Checkout(context.Background(), "me", sel, validTrip())

	require.ErrorIs(t, err, apierror.ErrTransport)
	assert.Empty(t, api.received)
	assert.Equal(t, 1, sel.set.Len())
}

func Test_Return_RefreshesTheBook(t *testing.T) {
	api := newFakeAPI()
	api.bookings["bk-1"] = bookingFor("me", catalog.StatusTaken)
	refresh := &refreshRecorder{}
	svc := NewService(api, refresh, nil)

	b, err := svc.Return(context.Background(), "me", "bk-1")

	require.NoError(t, err)
	assert.Equal(t, catalog.StatusReturned, b.Status)
	assert.Equal(t, [][]string{{"me", "book-1"}}, refresh.calls)
}

func Test_Return_NotFound(t *testing.T) {
	svc := NewService(newFakeAPI(), nil, nil)

	_, err := svc.Return(context.Background(), "me", "missing")

	var rf *apierror.RequestFailure
	require.ErrorAs(t, err, &rf)
	assert.True(t, rf.NotFound())
}

func Test_Cancel_RefreshesTheBook(t *testing.T) {
	api := newFakeAPI()
	api.bookings["bk-1"] = bookingFor("me", catalog.StatusPending)
	refresh := &refreshRecorder{}
	svc := NewService(api, refresh, nil)

	require.NoError(t, svc.Cancel(context.Background(), "me", "bk-1"))

	assert.Equal(t, []string{"bk-1"}, api.cancelled)
	assert.Equal(t, [][]string{{"me", "book-1"}}, refresh.calls)
}

func Test_ReturnAndCancel_RecordSpans_WhenTracerProviderIsSet(t *testing.T) {
	// arrange
	api := newFakeAPI()
	api.bookings["bk-1"] = bookingFor("me", catalog.StatusTaken)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc := NewService(api, nil, nil, WithTracerProvider(tp))

	// act
	_, returnErr := svc.Return(context.Background(), "me", "bk-1")
	cancelErr := svc.Cancel(context.Background(), "me", "missing")

	// assert
	require.NoError(t, returnErr)
	require.Error(t, cancelErr)
	ended := recorder.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "booking.return", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("booking.id", "bk-1"))
	assert.Contains(t, ended[0].Attributes(), attribute.String("book.id", "book-1"))
	assert.Equal(t, codes.Unset, ended[0].Status().Code)

	assert.Equal(t, "booking.cancel", ended[1].Name())
	assert.Contains(t, ended[1].Attributes(), attribute.String("booking.id", "missing"))
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "exception", ended[1].Events()[0].Name)
}

func Test_MyBookings(t *testing.T) {
	api := newFakeAPI()
	api.bookings["bk-1"] = bookingFor("me", catalog.StatusTaken)
	api.bookings["bk-2"] = bookingFor("me", catalog.StatusReturned)
	svc := NewService(api, nil, nil)

	page, err := svc.MyBookings(context.Background(), catalog.BookingQuery{Status: catalog.StatusTaken})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 1)
	assert.Equal(t, catalog.StatusTaken, page.Bookings[0].Status)

	_, err = svc.MyBookings(context.Background(), catalog.BookingQuery{Status: "LOST"})
	var ve *apierror.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, api.listQueries, 1)
}
