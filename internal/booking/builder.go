// internal/booking/builder.go
package booking

import (
	"bookshare/internal/apierror"
	"bookshare/internal/catalog"

	"github.com/google/uuid"
)

// Trip holds the parameters shared by every reservation of one batch.
type Trip struct {
	PickupDate     catalog.Date `json:"planned_pickup_date"`
	ReturnDate     catalog.Date `json:"planned_return_date"`
	BookingPointID string       `json:"booking_point_id"`
	Notes          string       `json:"notes"`
}

// Request is a single reservation to send. It is never modified after
// BuildRequests returns it.
type Request struct {
	BookID         string       `json:"book_id"`
	PickupDate     catalog.Date `json:"planned_pickup_date"`
	ReturnDate     catalog.Date `json:"planned_return_date"`
	BookingPointID string       `json:"booking_point_id"`
	Notes          string       `json:"notes,omitempty"`
	IdempotencyKey string       `json:"idempotency_key"`
}

// ToNewBooking converts r into the create-booking call body.
func (r Request) ToNewBooking() catalog.NewBooking {
	return catalog.NewBooking{
		BookID:            r.BookID,
		PlannedPickupDate: r.PickupDate,
		PlannedReturnDate: r.ReturnDate,
		BookingPointID:    r.BookingPointID,
		Notes:             r.Notes,
		IdempotencyKey:    r.IdempotencyKey,
	}
}

// ValidateTrip runs every check that needs no server data: required fields,
// a non-empty selection, pickup not before today and return after pickup.
func ValidateTrip(selection *SelectionSet, trip Trip, today catalog.Date) error {
	if trip.PickupDate.IsZero() || trip.ReturnDate.IsZero() || trip.BookingPointID == "" {
		return apierror.NewValidationError("trip", "pickup date, return date and booking point are required")
	}
	if selection.Len() == 0 {
		return apierror.NewValidationError("selection", "no books selected")
	}
	if trip.PickupDate.Before(today) {
		return apierror.NewValidationError("planned_pickup_date", "pickup date cannot be in the past")
	}
	if !trip.ReturnDate.After(trip.PickupDate) {
		return apierror.NewValidationError("planned_return_date", "return date must be after pickup date")
	}
	return nil
}

// BuildRequests validates trip and expands the selection into one request per
// selected book. today is the caller's current calendar day. On a validation
// failure no request is built and the error is a *apierror.ValidationError.
func BuildRequests(selection *SelectionSet, trip Trip, points []catalog.BookingPoint, today catalog.Date) ([]Request, error) {
	if err := ValidateTrip(selection, trip, today); err != nil {
		return nil, err
	}
	if !knownPoint(points, trip.BookingPointID) {
		return nil, apierror.NewValidationError("booking_point_id", "unknown booking point")
	}

	ids := selection.IDs()
	reqs := make([]Request, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, Request{
			BookID:         id,
			PickupDate:     trip.PickupDate,
			ReturnDate:     trip.ReturnDate,
			BookingPointID: trip.BookingPointID,
			Notes:          trip.Notes,
			IdempotencyKey: uuid.NewString(),
		})
	}
	return reqs, nil
}

func knownPoint(points []catalog.BookingPoint, id string) bool {
	for _, p := range points {
		if p.ID == id && p.IsActive {
			return true
		}
	}
	return false
}
