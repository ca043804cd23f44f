// internal/booking/coordinator.go
package booking

import (
	"bookshare/internal/apierror"
	"bookshare/internal/catalog"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// Reserver creates a single booking on the server.
type Reserver interface {
	CreateBooking(ctx context.Context, nb catalog.NewBooking) (*catalog.Booking, error)
}

// Failure is one request the server did not accept.
type Failure struct {
	Request Request `json:"request"`
	Reason  string  `json:"reason"`
	Err     error   `json:"-"`
}

// Result is the settled outcome of a whole batch.
type Result struct {
	BatchID   string            `json:"batch_id"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Accepted  []string          `json:"accepted"`
	Bookings  []catalog.Booking `json:"bookings"`
	Failed    []Failure         `json:"failed"`
}

// Err returns a *apierror.BatchError when any request failed.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &apierror.BatchError{Failed: len(r.Failed), Total: r.Total}
}

// FailedIDs returns the book ids of the failed requests in request order.
func (r *Result) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.Request.BookID)
	}
	return ids
}

// Coordinator sends a batch of reservations concurrently and waits for all of
// them to settle.
type Coordinator struct {
	reserver Reserver
	logger   *slog.Logger
	tracer   trace.Tracer

	reserved metric.Int64Counter
	rejected metric.Int64Counter
	duration metric.Float64Histogram
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorConfig)

type coordinatorConfig struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records batch metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) CoordinatorOption {
	return func(cfg *coordinatorConfig) { cfg.meterProvider = mp }
}

func NewCoordinator(reserver Reserver, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := coordinatorConfig{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Coordinator{
		reserver: reserver,
		logger:   logger,
		tracer:   otel.Tracer("bookshare/booking"),
	}
	if err := c.initInstruments(cfg.meterProvider.Meter("bookshare/booking")); err != nil {
		logger.Warn("metrics disabled", "error", err)
		c.initInstruments(noop.NewMeterProvider().Meter("bookshare/booking"))
	}
	return c
}

func (c *Coordinator) initInstruments(meter metric.Meter) error {
	var err error
	if c.reserved, err = meter.Int64Counter("booking.reservations.accepted",
		metric.WithDescription("Reservations accepted by the server")); err != nil {
		return err
	}
	if c.rejected, err = meter.Int64Counter("booking.reservations.failed",
		metric.WithDescription("Reservations rejected or lost in transport")); err != nil {
		return err
	}
	if c.duration, err = meter.Float64Histogram("booking.batch.duration",
		metric.WithDescription("Time until every request of a batch settled"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	return nil
}

var errEmptyBooking = errors.New("server returned no booking")

type outcome struct {
	booking *catalog.Booking
	err     error
}

// Submit issues every request at once and returns only after all of them
// have settled. A failing request never stops its siblings. Requests are
// detached from ctx cancellation: once issued they run to completion and are
// bounded only by the HTTP client timeout.
func (c *Coordinator) Submit(ctx context.Context, reqs []Request) *Result {
	batchID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "booking.submit_batch",
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.Int("batch.size", len(reqs)),
		),
	)
	defer span.End()

	start := time.Now()
	outcomes := make([]outcome, len(reqs))
	detached := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := c.reserver.CreateBooking(detached, req.ToNewBooking())
			outcomes[i] = outcome{booking: b, err: err}
		}()
	}
	wg.Wait()

	result := &Result{
		BatchID:  batchID,
		Total:    len(reqs),
		Accepted: []string{},
		Bookings: []catalog.Booking{},
		Failed:   []Failure{},
	}
	for i, o := range outcomes {
		req := reqs[i]
		if o.err == nil && o.booking == nil {
			o.err = apierror.Transport("create_booking", errEmptyBooking)
		}
		if o.err != nil {
			result.Failed = append(result.Failed, Failure{
				Request: req,
				Reason:  apierror.Reason(o.err),
				Err:     o.err,
			})
			c.logger.WarnContext(ctx, "reservation failed",
				"batch_id", batchID, "book_id", req.BookID, "error", o.err)
			continue
		}
		result.Succeeded++
		result.Accepted = append(result.Accepted, req.BookID)
		result.Bookings = append(result.Bookings, *o.booking)
	}

	c.reserved.Add(ctx, int64(result.Succeeded))
	c.rejected.Add(ctx, int64(len(result.Failed)))
	c.duration.Record(ctx, time.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int("batch.succeeded", result.Succeeded),
		attribute.Int("batch.failed", len(result.Failed)),
	)
	if err := result.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	c.logger.InfoContext(ctx, "batch settled",
		"batch_id", batchID, "succeeded", result.Succeeded, "failed", len(result.Failed))
	return result
}
