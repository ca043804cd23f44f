// internal/booking/implementation.go
package booking

import (
	"bookshare/internal/apierror"
	"bookshare/internal/catalog"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	api         BookingAPI
	coordinator *Coordinator
	refresh     RefreshListener
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option customizes a Service.
type Option func(*service)

// WithClock replaces time.Now when deciding what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithTracerProvider replaces the global tracer provider for return and
// cancel spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *service) { s.tracer = tp.Tracer("bookshare/booking") }
}

// NewService creates a new booking service instance. refresh may be nil.
func NewService(api BookingAPI, refresh RefreshListener, logger *slog.Logger, opts ...Option) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if refresh == nil {
		refresh = RefreshFunc(func(context.Context, string, []string) {})
	}
	s := &service{
		api:         api,
		coordinator: NewCoordinator(api, logger),
		refresh:     refresh,
		logger:      logger,
		tracer:      otel.Tracer("bookshare/booking"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) BookingPoints(ctx context.Context) ([]catalog.BookingPoint, error) {
	points, err := s.api.BookingPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking points: %w", err)
	}
	return points, nil
}

// Checkout reserves every selected book for trip. Accepted books leave the
// selection even when siblings fail; nothing already accepted is rolled back.
// A partially failed batch returns both the result and a *apierror.BatchError.
func (s *service) Checkout(ctx context.Context, userID string, sel SelectionStore, trip Trip) (*Result, error) {
	selection := sel.Selection()
	today := catalog.NewDate(s.now())

	// Step 1: Reject what can be checked locally before touching the network
	if err := ValidateTrip(selection, trip, today); err != nil {
		return nil, err
	}

	// Step 2: Load the pickup points the trip must refer to
	points, err := s.BookingPoints(ctx)
	if err != nil {
		return nil, err
	}

	// Step 3: Build one request per selected book
	reqs, err := BuildRequests(selection, trip, points, today)
	if err != nil {
		return nil, err
	}

	// Step 4: Send them all and wait for every outcome
	result := s.coordinator.Submit(ctx, reqs)

	// Step 5: Reconcile the selection with what the server accepted
	if len(result.Accepted) > 0 {
		sel.RemoveSelected(result.Accepted...)
	}
	if err := result.Err(); err != nil {
		s.logger.WarnContext(ctx, "checkout partially failed",
			"user_id", userID, "batch_id", result.BatchID, "failed", result.FailedIDs())
		return result, err
	}

	sel.ClearSelection()
	s.refresh.Refresh(ctx, userID, result.Accepted)
	return result, nil
}

func (s *service) Return(ctx context.Context, userID, bookingID string) (*catalog.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.return",
		trace.WithAttributes(attribute.String("booking.id", bookingID)),
	)
	defer span.End()

	b, err := s.api.ConfirmReturn(ctx, bookingID)
	if err != nil {
		err = fmt.Errorf("failed to confirm return: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("book.id", b.BookID))
	if b.BookID != "" {
		s.refresh.Refresh(ctx, userID, []string{b.BookID})
	}
	return b, nil
}

func (s *service) Cancel(ctx context.Context, userID, bookingID string) error {
	ctx, span := s.tracer.Start(ctx, "booking.cancel",
		trace.WithAttributes(attribute.String("booking.id", bookingID)),
	)
	defer span.End()

	// The cancel endpoint answers without a body, so the affected book is
	// looked up first.
	var bookID string
	if b, err := s.api.GetBooking(ctx, bookingID); err != nil {
		s.logger.DebugContext(ctx, "booking lookup before cancel failed", "booking_id", bookingID, "error", err)
	} else {
		bookID = b.BookID
	}

	if err := s.api.CancelBooking(ctx, bookingID); err != nil {
		err = fmt.Errorf("failed to cancel booking: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if bookID != "" {
		s.refresh.Refresh(ctx, userID, []string{bookID})
	}
	return nil
}

func (s *service) MyBookings(ctx context.Context, q catalog.BookingQuery) (*catalog.BookingPage, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apierror.NewValidationError("status", fmt.Sprintf("unknown booking status %q", q.Status))
	}
	page, err := s.api.ListBookings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return page, nil
}
