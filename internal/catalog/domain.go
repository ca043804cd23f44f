// internal/catalog/domain.go
package catalog

import (
	"encoding/json"
)

// BookingStatus is the server-side lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusTaken     BookingStatus = "TAKEN"
	StatusReturned  BookingStatus = "RETURNED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// IsActive reports whether the booking still holds a claim on its book.
func (s BookingStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusTaken:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusTaken, StatusReturned, StatusCancelled:
		return true
	default:
		return false
	}
}

// Label returns the human readable name shown in booking lists.
func (s BookingStatus) Label() string {
	switch s {
	case StatusPending:
		return "Awaiting confirmation"
	case StatusConfirmed:
		return "Confirmed"
	case StatusTaken:
		return "Taken"
	case StatusReturned:
		return "Returned"
	case StatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// UserRef is the compact user object the API embeds in books and bookings.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

// BookRef is the compact book object embedded in a booking.
type BookRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// PointRef is the compact booking point object embedded in a booking.
type PointRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Booking represents a claim on a book by a borrower for a date range.
type Booking struct {
	ID                string        `json:"id"`
	BookID            string        `json:"book_id,omitempty"`
	BorrowerID        string        `json:"borrower_id"`
	Status            BookingStatus `json:"status"`
	BookingDate       *Timestamp    `json:"booking_date,omitempty"`
	PlannedPickupDate Date          `json:"planned_pickup_date"`
	PlannedReturnDate Date          `json:"planned_return_date"`
	ActualPickupDate  *Timestamp    `json:"actual_pickup_date,omitempty"`
	ActualReturnDate  *Timestamp    `json:"actual_return_date,omitempty"`
	BookingPointID    string        `json:"booking_point_id,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	Book              *BookRef      `json:"book,omitempty"`
	Borrower          *UserRef      `json:"borrower,omitempty"`
	BookingPoint      *PointRef     `json:"booking_point,omitempty"`
}

// Book represents a shareable physical book in the catalog.
// A Book value is a snapshot taken at fetch time and is never mutated.
type Book struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Description     string     `json:"description,omitempty"`
	Genre           string     `json:"genre,omitempty"`
	PublicationYear int        `json:"publication_year,omitempty"`
	Condition       string     `json:"condition,omitempty"`
	CoverImageURL   string     `json:"cover_image_url,omitempty"`
	OwnerID         string     `json:"owner_id"`
	IsAvailable     bool       `json:"is_available"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       *Timestamp `json:"created_at,omitempty"`
	UpdatedAt       *Timestamp `json:"updated_at,omitempty"`
	Owner           *UserRef   `json:"owner,omitempty"`
	Bookings        []Booking  `json:"bookings,omitempty"`
}

// UnmarshalJSON decodes a book and stamps its id onto embedded bookings,
// which the API sends without a book_id.
func (b *Book) UnmarshalJSON(data []byte) error {
	type plain Book
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	for i := range p.Bookings {
		if p.Bookings[i].BookID == "" {
			p.Bookings[i].BookID = p.ID
		}
	}
	*b = Book(p)
	return nil
}

// BookingPoint is a place where books are handed over.
type BookingPoint struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Coordinates  string `json:"coordinates,omitempty"`
	WorkingHours string `json:"working_hours,omitempty"`
	Phone        string `json:"phone,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// User is the identity returned by the auth endpoint.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// NewBooking is the body of a create-booking call.
type NewBooking struct {
	BookID            string `json:"book_id"`
	PlannedPickupDate Date   `json:"planned_pickup_date"`
	PlannedReturnDate Date   `json:"planned_return_date"`
	BookingPointID    string `json:"booking_point_id"`
	Notes             string `json:"notes,omitempty"`
	// IdempotencyKey travels as a header, not in the body.
	IdempotencyKey string `json:"-"`
}
