// cmd/reserve/main.go
package main

import (
	"bookshare/internal/apierror"
	"bookshare/internal/booking"
	"bookshare/internal/catalog"
	"bookshare/internal/clients"
	"bookshare/internal/config"
	"bookshare/internal/session"
	"bookshare/internal/telemetry"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1 // some reservations were rejected
	exitInvalid = 2 // bad flags or trip
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitInvalid
	}

	fs := flag.NewFlagSet("reserve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	apiURL := fs.String("api", cfg.API.BaseURL, "book-sharing API base URL")
	books := fs.String("books", "", "comma separated book ids to reserve")
	pickup := fs.String("pickup", "", "planned pickup date (YYYY-MM-DD)")
	ret := fs.String("return", "", "planned return date (YYYY-MM-DD)")
	point := fs.String("point", "", "booking point id")
	notes := fs.String("notes", "", "notes for the owner")
	token := fs.String("token", os.Getenv("BOOKSHARE_TOKEN"), "access token")
	if err := fs.Parse(args); err != nil {
		return exitInvalid
	}

	trip, err := parseTrip(*pickup, *ret, *point, *notes)
	if err != nil {
		fmt.Fprintf(stderr, "invalid trip: %v\n", err)
		return exitInvalid
	}

	logger := telemetry.NewLogger(stderr, cfg.IsProduction(), cfg.Server.Debug)
	opts := clients.Options{
		Timeout: cfg.API.Timeout,
		Limiter: clients.NewLimiter(cfg.API.RateLimit, cfg.API.RateBurst),
		Logger:  logger,
	}
	ctx = clients.WithCredentials(ctx, clients.Credentials{Authorization: bearer(*token)})

	user, err := clients.NewAuthClient(*apiURL, opts).Me(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "authentication failed: %s\n", apierror.Reason(err))
		return exitFailed
	}

	store := session.NewStore()
	for _, id := range splitIDs(*books) {
		store.Dispatch(session.Toggle(id, booking.Select))
	}

	svc := booking.NewService(clients.NewBookingClient(*apiURL, opts), nil, logger)
	result, err := svc.Checkout(ctx, user.ID, store, trip)

	var ve *apierror.ValidationError
	var be *apierror.BatchError
	switch {
	case errors.As(err, &ve):
		fmt.Fprintf(stderr, "%s: %s\n", ve.Field, ve.Reason)
		return exitInvalid
	case errors.As(err, &be):
		printResult(stdout, result)
		fmt.Fprintln(stdout, be.Error())
		return exitFailed
	case err != nil:
		fmt.Fprintf(stderr, "checkout failed: %s\n", apierror.Reason(err))
		return exitFailed
	}

	printResult(stdout, result)
	return exitOK
}

func parseTrip(pickup, ret, point, notes string) (booking.Trip, error) {
	trip := booking.Trip{BookingPointID: point, Notes: notes}
	var err error
	if pickup != "" {
		if trip.PickupDate, err = catalog.ParseDate(pickup); err != nil {
			return trip, fmt.Errorf("-pickup: %w", err)
		}
	}
	if ret != "" {
		if trip.ReturnDate, err = catalog.ParseDate(ret); err != nil {
			return trip, fmt.Errorf("-return: %w", err)
		}
	}
	return trip, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func bearer(token string) string {
	if token == "" || strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

func printResult(w io.Writer, r *booking.Result) {
	fmt.Fprintf(w, "batch %s: %d of %d reserved\n", r.BatchID, r.Succeeded, r.Total)
	for _, b := range r.Bookings {
		fmt.Fprintf(w, "  ok     %s  booking %s  %s\n", b.BookID, b.ID, b.Status.Label())
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed %s  %s\n", f.Request.BookID, f.Reason)
	}
}
