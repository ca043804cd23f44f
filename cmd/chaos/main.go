// cmd/chaos/main.go
package main

import (
	"bookshare/internal/apierror"
	"bookshare/internal/booking"
	"bookshare/internal/catalog"
	"bookshare/internal/chaos"
	"bookshare/internal/clients"
	"bookshare/internal/config"
	"bookshare/internal/session"
	"bookshare/internal/telemetry"
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Drills run real reservations against API_BASE_URL. Point it at a disposable
// environment.
func main() {
	books := flag.String("books", "", "comma separated book ids reserved by each drill")
	token := flag.String("token", os.Getenv("BOOKSHARE_TOKEN"), "access token")
	point := flag.String("point", "", "booking point id")
	pause := flag.Duration("pause", 2*time.Second, "pause between experiments")
	flag.Parse()

	if *books == "" || *point == "" {
		log.Fatal("-books and -point are required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := telemetry.NewLogger(os.Stderr, cfg.IsProduction(), cfg.Server.Debug)

	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to set up telemetry: %v", err)
	}

	ids := strings.Split(*books, ",")

	d := drill{
		cfg:    cfg,
		logger: logger,
		books:  ids,
		creds:  clients.Credentials{Authorization: "Bearer " + strings.TrimPrefix(*token, "Bearer ")},
		trip: booking.Trip{
			PickupDate:     catalog.NewDate(time.Now().AddDate(0, 0, 1)),
			ReturnDate:     catalog.NewDate(time.Now().AddDate(0, 0, 8)),
			BookingPointID: *point,
			Notes:          "chaos drill",
		},
	}

	engine := chaos.NewEngine(http.DefaultTransport, logger)
	gameDay := chaos.GameDay{
		Name:      "Reservation workflow drill",
		Date:      time.Now(),
		Pause:     *pause,
		Scenarios: d.experiments(),
	}

	runErr := engine.ExecuteGameDay(ctx, os.Stdout, gameDay)

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(flushCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
	if runErr != nil {
		cancel()
		log.Fatalf("Chaos game day failed: %v", runErr)
	}
}

type drill struct {
	cfg    *config.Config
	logger *slog.Logger
	books  []string
	creds  clients.Credentials
	trip   booking.Trip
}

func (d drill) experiments() []chaos.Experiment {
	total := float64(len(d.books))
	return []chaos.Experiment{
		{
			Name:       "first-book-rejected",
			Hypothesis: "Only the rejected book stays selected and every other reservation is kept",
			Rules: []chaos.Rule{{
				Name:   "reject-first",
				Method: http.MethodPost,
				Match:  chaos.BodyContains(`"book_id":"` + d.books[0] + `"`),
				Rate:   1,
				Status: http.StatusConflict,
				Detail: "Book is already booked",
			}},
			Run: d.checkout,
			Validation: []chaos.Assertion{
				{Metric: "failed", Condition: eq(1), Message: "exactly one reservation fails"},
				{Metric: "selection_remaining", Condition: eq(1), Message: "the failed book stays selected"},
				{Metric: "settled", Condition: eq(total), Message: "every request settles"},
			},
		},
		{
			Name:       "booking-latency",
			Hypothesis: "Slow reservation calls all settle and the batch succeeds",
			Rules: []chaos.Rule{{
				Name:    "slow-bookings",
				Method:  http.MethodPost,
				Match:   chaos.BodyContains(`"book_id"`),
				Rate:    1,
				Latency: 500 * time.Millisecond,
			}},
			Run: d.checkout,
			Validation: []chaos.Assertion{
				{Metric: "failed", Condition: eq(0), Message: "no reservation fails"},
				{Metric: "selection_remaining", Condition: eq(0), Message: "the selection is cleared"},
			},
		},
		{
			Name:       "booking-outage",
			Hypothesis: "When every reservation call fails nothing is dropped from the selection",
			Rules: []chaos.Rule{{
				Name:   "network-down",
				Method: http.MethodPost,
				Match:  chaos.BodyContains(`"book_id"`),
				Rate:   1,
				Err:    chaos.ErrInjected,
			}},
			Run: d.checkout,
			Validation: []chaos.Assertion{
				{Metric: "failed", Condition: eq(total), Message: "every reservation fails"},
				{Metric: "selection_remaining", Condition: eq(total), Message: "the selection is untouched"},
			},
		},
	}
}

// checkout selects every drill book and submits one batch through rt. The
// accepted reservations are cancelled afterwards so the next experiment
// starts from the same catalog.
func (d drill) checkout(ctx context.Context, rt http.RoundTripper) (chaos.Observations, error) {
	opts := clients.Options{
		Timeout:   d.cfg.API.Timeout,
		Transport: rt,
		Limiter:   clients.NewLimiter(d.cfg.API.RateLimit, d.cfg.API.RateBurst),
		Logger:    d.logger,
	}
	ctx = clients.WithCredentials(ctx, d.creds)

	user, err := clients.NewAuthClient(d.cfg.API.BaseURL, opts).Me(ctx)
	if err != nil {
		return nil, err
	}
	store := session.NewStore()
	for _, id := range d.books {
		store.Dispatch(session.Toggle(id, booking.Select))
	}

	svc := booking.NewService(clients.NewBookingClient(d.cfg.API.BaseURL, opts), nil, d.logger)
	result, err := svc.Checkout(ctx, user.ID, store, d.trip)
	var be *apierror.BatchError
	if err != nil && !errors.As(err, &be) {
		return nil, err
	}

	for _, b := range result.Bookings {
		if err := svc.Cancel(ctx, user.ID, b.ID); err != nil {
			d.logger.Warn("failed to cancel drill booking", "booking_id", b.ID, "error", err)
		}
	}

	return chaos.Observations{
		"succeeded":           float64(result.Succeeded),
		"failed":              float64(len(result.Failed)),
		"settled":             float64(result.Succeeded + len(result.Failed)),
		"selection_remaining": float64(store.Selection().Len()),
	}, nil
}

func eq(want float64) func(float64) bool {
	return func(v float64) bool { return v == want }
}
