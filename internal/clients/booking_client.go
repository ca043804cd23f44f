// internal/clients/booking_client.go
package clients

import (
	"bookshare/internal/catalog"
	"context"
	"net/http"
)

// BookingClient talks to the /bookings endpoints.
type BookingClient struct {
	api *apiClient
}

func NewBookingClient(baseURL string, opts Options) *BookingClient {
	return &BookingClient{api: newAPIClient(baseURL, opts)}
}

// BookingPoints lists the active pickup points.
func (c *BookingClient) BookingPoints(ctx context.Context) ([]catalog.BookingPoint, error) {
	var points []catalog.BookingPoint
	err := c.api.do(ctx, call{
		op:     "booking_points",
		method: http.MethodGet,
		path:   "/bookings/booking-points",
		out:    &points,
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// CreateBooking asks the server to reserve one book.
func (c *BookingClient) CreateBooking(ctx context.Context, nb catalog.NewBooking) (*catalog.Booking, error) {
	var header http.Header
	if nb.IdempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{nb.IdempotencyKey}}
	}
	var booking catalog.Booking
	err := c.api.do(ctx, call{
		op:     "create_booking",
		method: http.MethodPost,
		path:   "/bookings",
		body:   nb,
		header: header,
		out:    &booking,
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBooking fetches a single booking.
func (c *BookingClient) GetBooking(ctx context.Context, id string) (*catalog.Booking, error) {
	var booking catalog.Booking
	err := c.api.do(ctx, call{
		op:     "get_booking",
		method: http.MethodGet,
		path:   "/bookings/" + escape(id),
		out:    &booking,
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookings lists the acting user's bookings.
func (c *BookingClient) ListBookings(ctx context.Context, q catalog.BookingQuery) (*catalog.BookingPage, error) {
	var page catalog.BookingPage
	err := c.api.do(ctx, call{
		op:     "list_bookings",
		method: http.MethodGet,
		path:   "/bookings",
		query:  q.Values(),
		out:    &page,
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// ConfirmReturn marks a taken booking as returned.
func (c *BookingClient) ConfirmReturn(ctx context.Context, id string) (*catalog.Booking, error) {
	var booking catalog.Booking
	err := c.api.do(ctx, call{
		op:     "confirm_return",
		method: http.MethodPost,
		path:   "/bookings/" + escape(id) + "/confirm-return",
		out:    &booking,
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// CancelBooking cancels a booking.
func (c *BookingClient) CancelBooking(ctx context.Context, id string) error {
	return c.api.do(ctx, call{
		op:     "cancel_booking",
		method: http.MethodDelete,
		path:   "/bookings/" + escape(id),
	})
}
