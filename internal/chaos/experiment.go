// internal/chaos/experiment.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Experiment defines one fault-injection drill. Run drives the workflow
// under test through the faulty transport and reports what it observed.
type Experiment struct {
	Name       string
	Hypothesis string
	Rules      []Rule
	Run        func(ctx context.Context, rt http.RoundTripper) (Observations, error)
	Validation []Assertion
}

// Observations are the measured outcome of an experiment run, by metric name.
type Observations map[string]float64

// Assertion validates one observed metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// ExperimentResult captures experiment execution data.
type ExperimentResult struct {
	ExperimentName string         `json:"experiment_name"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Duration       time.Duration  `json:"duration"`
	HypothesisHeld bool           `json:"hypothesis_held"`
	Observations   Observations   `json:"observations"`
	Violations     []string       `json:"violations"`
	Injected       map[string]int `json:"injected"`
	Error          string         `json:"error,omitempty"`
}

// Engine runs experiments against a real transport.
type Engine struct {
	tracer  trace.Tracer
	next    http.RoundTripper
	logger  *slog.Logger
	mu      sync.Mutex
	results []ExperimentResult
}

func NewEngine(next http.RoundTripper, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tracer: otel.Tracer("bookshare/chaos"),
		next:   next,
		logger: logger,
	}
}

// RunExperiment runs exp once with its rules installed on a fresh transport.
// A failing Run is recorded in the result, not returned.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) *ExperimentResult {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &ExperimentResult{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
	}

	span.AddEvent("injecting_chaos")
	tr := NewTransport(e.next, exp.Rules...)

	span.AddEvent("observing_system")
	obs, err := exp.Run(ctx, tr)
	if err != nil {
		span.RecordError(err)
		result.Error = err.Error()
	}
	if obs == nil {
		obs = Observations{}
	}
	result.Observations = obs
	result.Injected = tr.Injected()

	span.AddEvent("validating_assertions")
	result.Violations = validate(exp.Validation, obs)
	result.HypothesisHeld = err == nil && len(result.Violations) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	if !result.HypothesisHeld {
		span.SetStatus(codes.Error, "hypothesis violated")
	}

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "experiment finished",
		"experiment", exp.Name,
		"hypothesis_held", result.HypothesisHeld,
		"violations", len(result.Violations),
		"duration", result.Duration,
	)
	return result
}

// Results returns every result recorded so far.
func (e *Engine) Results() []ExperimentResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExperimentResult(nil), e.results...)
}

func validate(assertions []Assertion, obs Observations) []string {
	var violations []string
	for _, a := range assertions {
		v, ok := obs[a.Metric]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: not observed", a.Metric))
			continue
		}
		if !a.Condition(v) {
			violations = append(violations, fmt.Sprintf("%s: %s (got %g)", a.Metric, a.Message, v))
		}
	}
	return violations
}

// GameDay orchestrates a series of experiments.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
	// Pause between experiments.
	Pause time.Duration
}

// ExecuteGameDay runs every scenario in order, printing a report to w. It
// returns an error naming the scenarios whose hypothesis did not hold.
func (e *Engine) ExecuteGameDay(ctx context.Context, w io.Writer, gameDay GameDay) error {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", gameDay.Name)),
	)
	defer span.End()

	fmt.Fprintf(w, "Game day: %s (%s)\n", gameDay.Name, gameDay.Date.Format(time.DateOnly))

	var errs []error
	for i, scenario := range gameDay.Scenarios {
		if i > 0 && gameDay.Pause > 0 {
			select {
			case <-time.After(gameDay.Pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		fmt.Fprintf(w, "\nExperiment %d/%d: %s\n", i+1, len(gameDay.Scenarios), scenario.Name)
		fmt.Fprintf(w, "Hypothesis: %s\n", scenario.Hypothesis)

		result := e.RunExperiment(ctx, scenario)
		printResult(w, result)
		if !result.HypothesisHeld {
			errs = append(errs, fmt.Errorf("%s: hypothesis violated", scenario.Name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func printResult(w io.Writer, result *ExperimentResult) {
	if result.HypothesisHeld {
		fmt.Fprintln(w, "  held")
	} else {
		fmt.Fprintln(w, "  VIOLATED")
	}
	if result.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", result.Error)
	}
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  - %s\n", v)
	}

	names := make([]string, 0, len(result.Observations))
	for name := range result.Observations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %g\n", name, result.Observations[name])
	}
	fmt.Fprintf(w, "  injected: %v, duration: %s\n", result.Injected, result.Duration)
}
