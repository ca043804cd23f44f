// internal/clients/catalog_client.go
package clients

import (
	"bookshare/internal/apierror"
	"bookshare/internal/catalog"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// CatalogClient reads books from the catalog. Reads run behind a circuit
// breaker that only counts transport errors and 5xx answers as failures.
type CatalogClient struct {
	api     *apiClient
	breaker *gobreaker.CircuitBreaker
}

func NewCatalogClient(baseURL string, opts Options) *CatalogClient {
	api := newAPIClient(baseURL, opts)
	settings := gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			api.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &CatalogClient{
		api:     api,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// ListBooks fetches one page of the catalog.
func (c *CatalogClient) ListBooks(ctx context.Context, q catalog.BookQuery) (*catalog.BookPage, error) {
	var page catalog.BookPage
	err := c.read(ctx, call{
		op:     "list_books",
		method: http.MethodGet,
		path:   "/books",
		query:  q.Values(),
		out:    &page,
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetBook fetches a single book with its bookings.
func (c *CatalogClient) GetBook(ctx context.Context, id string) (*catalog.Book, error) {
	var book catalog.Book
	err := c.read(ctx, call{
		op:     "get_book",
		method: http.MethodGet,
		path:   "/books/" + escape(id),
		out:    &book,
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) read(ctx context.Context, rc call) error {
	var rejected error
	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.api.do(ctx, rc)
		var rf *apierror.RequestFailure
		if errors.As(err, &rf) && rf.StatusCode < http.StatusInternalServerError {
			rejected = err
			return nil, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apierror.Transport(rc.op, err)
	}
	if err != nil {
		return err
	}
	return rejected
}
