// internal/catalog/page.go
package catalog

import (
	"net/url"
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Filters narrows the catalog listing.
type Filters struct {
	Search        string `json:"search,omitempty"`
	Genre         string `json:"genre,omitempty"`
	Author        string `json:"author,omitempty"`
	OwnerID       string `json:"owner_id,omitempty"`
	AvailableOnly bool   `json:"available_only"`
}

// DefaultFilters matches what the catalog view shows on first load.
func DefaultFilters() Filters {
	return Filters{AvailableOnly: true}
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// DefaultPagination is the first page with the default page size.
func DefaultPagination() Pagination {
	return Pagination{Page: DefaultPage, Limit: DefaultLimit}
}

// Normalize clamps page and limit into the range the API accepts.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// BookQuery is a full catalog listing request.
type BookQuery struct {
	Filters
	Page  int
	Limit int
}

// Values encodes the query, skipping empty parameters.
func (q BookQuery) Values() url.Values {
	p := Pagination{Page: q.Page, Limit: q.Limit}.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("limit", strconv.Itoa(p.Limit))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Genre != "" {
		v.Set("genre", q.Genre)
	}
	if q.Author != "" {
		v.Set("author", q.Author)
	}
	if q.OwnerID != "" {
		v.Set("owner_id", q.OwnerID)
	}
	v.Set("available_only", strconv.FormatBool(q.AvailableOnly))
	return v
}

// BookPage is one page of the catalog.
type BookPage struct {
	Books []Book `json:"books"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Pages int    `json:"pages"`
}

// Pagination extracts the paging fields of the page.
func (p BookPage) Pagination() Pagination {
	return Pagination{Page: p.Page, Limit: p.Limit, Total: p.Total, Pages: p.Pages}
}

// BookingQuery lists the acting user's bookings.
type BookingQuery struct {
	Status BookingStatus
	Page   int
	Limit  int
}

// Values encodes the query, skipping empty parameters.
func (q BookingQuery) Values() url.Values {
	p := Pagination{Page: q.Page, Limit: q.Limit}.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("limit", strconv.Itoa(p.Limit))
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	return v
}

// BookingPage is one page of bookings.
type BookingPage struct {
	Bookings []Booking `json:"bookings"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Pages    int       `json:"pages"`
}
