// internal/booking/service.go
package booking

import (
	"bookshare/internal/catalog"
	"context"
)

// Service defines the interface for the booking workflow.
type Service interface {
	BookingPoints(ctx context.Context) ([]catalog.BookingPoint, error)
	Checkout(ctx context.Context, userID string, sel SelectionStore, trip Trip) (*Result, error)
	Return(ctx context.Context, userID, bookingID string) (*catalog.Booking, error)
	Cancel(ctx context.Context, userID, bookingID string) error
	MyBookings(ctx context.Context, q catalog.BookingQuery) (*catalog.BookingPage, error)
}

// SelectionStore is the acting user's selection as seen by the workflow.
type SelectionStore interface {
	// Selection returns a copy of the current selection.
	Selection() *SelectionSet
	RemoveSelected(ids ...string)
	ClearSelection()
}

// RefreshListener is told which books changed server-side so that cached
// snapshots can be brought up to date.
type RefreshListener interface {
	Refresh(ctx context.Context, userID string, bookIDs []string)
}

// RefreshFunc adapts a function to RefreshListener.
type RefreshFunc func(ctx context.Context, userID string, bookIDs []string)

func (f RefreshFunc) Refresh(ctx context.Context, userID string, bookIDs []string) {
	f(ctx, userID, bookIDs)
}

// BookingAPI is the subset of the booking endpoints the workflow calls.
type BookingAPI interface {
	Reserver
	BookingPoints(ctx context.Context) ([]catalog.BookingPoint, error)
	GetBooking(ctx context.Context, id string) (*catalog.Booking, error)
	ListBookings(ctx context.Context, q catalog.BookingQuery) (*catalog.BookingPage, error)
	ConfirmReturn(ctx context.Context, id string) (*catalog.Booking, error)
	CancelBooking(ctx context.Context, id string) error
}
