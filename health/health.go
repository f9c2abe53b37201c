// Package health runs the health checks of a component and serves them over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/glimte/unitbus/internal/clock"
)

// Status is the outcome of a check
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of s and other
func (s Status) Worse(other Status) Status {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

// Result is what a Checker reports
type Result struct {
	Status  Status
	Message string
	Details map[string]any
}

// CheckResult is a Result as reported by the Registry
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// Report is the health of a component. Checks are listed in registration order.
type Report struct {
	Status    Status         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Checks    []CheckResult  `json:"checks"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Check returns the result of the named check
func (r Report) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Checker is a single health check. Check should return once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type checkerFunc struct {
	name string
	fn   func(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker
func CheckerFunc(name string, fn func(ctx context.Context) Result) Checker {
	return checkerFunc{name: name, fn: fn}
}

func (c checkerFunc) Name() string {
	return c.name
}

func (c checkerFunc) Check(ctx context.Context) Result {
	return c.fn(ctx)
}

// Registry runs a set of checkers
type Registry struct {
	mu       sync.RWMutex
	checkers []Checker
	metadata map[string]any
	clock    clock.Clock
}

// RegistryOption configures the Registry
type RegistryOption func(*Registry)

// WithClock sets the clock used for timestamps and durations
func WithClock(c clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}

func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		metadata: make(map[string]any),
		clock:    clock.Real{},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Register adds a checker. A checker with the same name is replaced in place.
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.checkers {
		if c.Name() == checker.Name() {
			r.checkers[i] = checker
			return
		}
	}
	r.checkers = append(r.checkers, checker)
}

// Unregister removes the named checker
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.checkers {
		if c.Name() == name {
			r.checkers = append(r.checkers[:i], r.checkers[i+1:]...)
			return
		}
	}
}

// Names returns the checker names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.checkers))
	for i, c := range r.checkers {
		names[i] = c.Name()
	}
	return names
}

// SetMetadata sets a value reported with every Report
func (r *Registry) SetMetadata(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = value
}

// Check runs all checkers concurrently. A checker still running when ctx is done is
// reported unhealthy and its late result is discarded.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	checkers := append([]Checker(nil), r.checkers...)
	metadata := make(map[string]any, len(r.metadata))
	for k, v := range r.metadata {
		metadata[k] = v
	}
	r.mu.RUnlock()

	start := r.clock.Now()
	results := make([]CheckResult, len(checkers))
	done := make(chan int, len(checkers))

	for i, checker := range checkers {
		go func() {
			began := r.clock.Now()
			res := checker.Check(ctx)
			results[i] = CheckResult{
				Name:      checker.Name(),
				Status:    res.Status,
				Message:   res.Message,
				Details:   res.Details,
				Duration:  r.clock.Now().Sub(began),
				Timestamp: began,
			}
			done <- i
		}()
	}

	finished := make([]bool, len(checkers))
wait:
	for range checkers {
		select {
		case i := <-done:
			finished[i] = true
		case <-ctx.Done():
			break wait
		}
	}

	report := Report{
		Status:    StatusHealthy,
		Timestamp: start,
		Checks:    make([]CheckResult, len(checkers)),
		Metadata:  metadata,
	}
	for i, checker := range checkers {
		res := CheckResult{
			Name:      checker.Name(),
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Duration:  r.clock.Now().Sub(start),
			Timestamp: start,
		}
		if finished[i] {
			res = results[i]
		}
		report.Checks[i] = res
		report.Status = report.Status.Worse(res.Status)
	}
	report.Duration = r.clock.Now().Sub(start)
	return report
}

// Handler serves the Report of the registry, bounding the checks with timeout.
// It answers 200 while healthy or degraded and 503 when unhealthy.
func (r *Registry) Handler(timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), timeout)
		defer cancel()
		report := r.Check(ctx)

		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(report)
	})
}

// LivenessHandler answers 200 as long as the process serves requests
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("alive"))
	}
}
