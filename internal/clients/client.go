// internal/clients/client.go
package clients

import (
	"bookshare/internal/apierror"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const maxErrorBody = 1 << 20

// Options configures the REST clients. The zero value is usable.
type Options struct {
	// Timeout bounds a single HTTP exchange. Zero means 10s.
	Timeout time.Duration
	// Transport replaces http.DefaultTransport, e.g. with a chaos transport.
	Transport http.RoundTripper
	// Limiter is shared by every client built from these options. Nil disables limiting.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// NewLimiter builds the outbound request limiter. rps <= 0 disables it.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Credentials are the caller's auth headers, forwarded verbatim.
type Credentials struct {
	Authorization string
	Cookie        string
}

type credentialsKey struct{}

// WithCredentials attaches the caller's credentials to ctx.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFrom returns the credentials attached to ctx, if any.
func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(Credentials)
	return creds, ok
}

// CredentialsFromRequest extracts the auth headers of an inbound request.
func CredentialsFromRequest(r *http.Request) Credentials {
	return Credentials{
		Authorization: r.Header.Get("Authorization"),
		Cookie:        r.Header.Get("Cookie"),
	}
}

// apiClient performs JSON exchanges with the book-sharing API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	tracer     trace.Tracer
	logger     *slog.Logger
}

func newAPIClient(baseURL string, opts Options) *apiClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		limiter:    opts.Limiter,
		tracer:     otel.Tracer("bookshare/clients"),
		logger:     logger,
	}
}

// call describes one API exchange.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
	out    any
}

// do runs c. Non-2xx answers become *apierror.RequestFailure; anything that
// prevents reading a well-formed answer is wrapped in apierror.ErrTransport.
func (a *apiClient) do(ctx context.Context, c call) error {
	ctx, span := a.tracer.Start(ctx, "clients."+c.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", c.method),
			attribute.String("http.route", c.path),
		),
	)
	defer span.End()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limiter")
			return apierror.Transport(c.op, err)
		}
	}

	var body io.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.op, err)
		}
		body = bytes.NewReader(payload)
	}

	target := a.baseURL + c.path
	if len(c.query) > 0 {
		target += "?" + c.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, c.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if creds, ok := CredentialsFrom(ctx); ok {
		if creds.Authorization != "" {
			req.Header.Set("Authorization", creds.Authorization)
		}
		if creds.Cookie != "" {
			req.Header.Set("Cookie", creds.Cookie)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		a.logger.WarnContext(ctx, "api call failed", "op", c.op, "error", err)
		return apierror.Transport(c.op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		failure := &apierror.RequestFailure{
			StatusCode: resp.StatusCode,
			Info:       apierror.Normalize(resp.StatusCode, raw),
		}
		span.SetStatus(codes.Error, failure.Info.Message)
		return failure
	}

	if c.out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(c.out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return apierror.Transport(c.op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func escape(id string) string {
	return url.PathEscape(id)
}
