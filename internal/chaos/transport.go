// internal/chaos/transport.go
package chaos

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInjected is returned by rules that simulate a lost connection.
var ErrInjected = errors.New("chaos: injected transport failure")

// Rule describes one fault. A request matches when Method and PathPrefix
// match (empty means any) and Match, if set, returns true. A matching
// request is faulted with probability Rate.
type Rule struct {
	Name       string
	Method     string
	PathPrefix string
	Match      func(*http.Request, []byte) bool
	Rate       float64 // 0.0 to 1.0
	// Latency is added before the fault, or before the real call when Status
	// and Err are both unset.
	Latency time.Duration
	Status  int    // synthetic response status
	Detail  string // synthetic response detail
	Err     error  // transport error to return instead of a response
}

// BodyContains matches requests whose body contains s.
func BodyContains(s string) func(*http.Request, []byte) bool {
	return func(_ *http.Request, body []byte) bool {
		return bytes.Contains(body, []byte(s))
	}
}

// RejectBookings rejects a share of reservation requests with 409, as if
// another borrower had been faster.
func RejectBookings(rate float64) Rule {
	return Rule{
		Name:   "reject-bookings",
		Method: http.MethodPost,
		Match: func(req *http.Request, _ []byte) bool {
			return strings.HasSuffix(strings.TrimRight(req.URL.Path, "/"), "/bookings")
		},
		Rate:   rate,
		Status: http.StatusConflict,
		Detail: "Book is already booked",
	}
}

// Transport is an http.RoundTripper that injects faults described by rules
// before delegating to Next.
type Transport struct {
	Next  http.RoundTripper
	Rules []Rule

	mu       sync.Mutex
	rand     func() float64
	injected map[string]int
}

func NewTransport(next http.RoundTripper, rules ...Rule) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{
		Next:     next,
		Rules:    rules,
		rand:     rand.Float64,
		injected: make(map[string]int),
	}
}

// Injected returns how many times each rule fired.
func (t *Transport) Injected() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.injected))
	for k, v := range t.injected {
		out[k] = v
	}
	return out
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := peekBody(req)
	if err != nil {
		return nil, err
	}

	for _, rule := range t.Rules {
		if !rule.matches(req, body) || !t.roll(rule.Rate) {
			continue
		}

		t.mu.Lock()
		t.injected[rule.Name]++
		t.mu.Unlock()

		trace.SpanFromContext(req.Context()).AddEvent("chaos.injected",
			trace.WithAttributes(
				attribute.String("chaos.rule", rule.Name),
				attribute.Int("chaos.status", rule.Status),
			),
		)

		if rule.Latency > 0 {
			select {
			case <-time.After(rule.Latency):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}
		if rule.Err != nil {
			return nil, fmt.Errorf("%s: %w", rule.Name, rule.Err)
		}
		if rule.Status != 0 {
			return syntheticResponse(req, rule), nil
		}
		break
	}

	return t.Next.RoundTrip(req)
}

func (r Rule) matches(req *http.Request, body []byte) bool {
	if r.Method != "" && r.Method != req.Method {
		return false
	}
	if r.PathPrefix != "" && !strings.HasPrefix(req.URL.Path, r.PathPrefix) {
		return false
	}
	if r.Match != nil && !r.Match(req, body) {
		return false
	}
	return true
}

func (t *Transport) roll(rate float64) bool {
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rand() < rate
}

// peekBody reads the request body and puts an identical reader back.
func peekBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("chaos: read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func syntheticResponse(req *http.Request, rule Rule) *http.Response {
	detail := rule.Detail
	if detail == "" {
		detail = http.StatusText(rule.Status)
	}
	payload, _ := json.Marshal(map[string]string{"detail": detail})
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", rule.Status, http.StatusText(rule.Status)),
		StatusCode:    rule.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}
}
