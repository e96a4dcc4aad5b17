// Package health serves the liveness and readiness probes of the API and
// analytics services. Readiness runs every registered dependency check in
// parallel, each under its own deadline, and caches the report briefly so
// aggressive probes do not turn into database load.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// rank orders statuses from best to worst.
func (s Status) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// PingCheck turns a ping into a Check. A failed ping is down for required
// dependencies and degraded otherwise: the API serves without Redis but
// not without Postgres.
func PingCheck(ping func(ctx context.Context) error, required bool) Check {
	failed := StatusDegraded
	if required {
		failed = StatusDown
	}
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

type Checker struct {
	// CheckTimeout bounds each check. Default 2s.
	CheckTimeout time.Duration
	// CacheFor reuses a report for this long. Zero disables caching.
	CacheFor time.Duration

	mu     sync.Mutex
	checks map[string]Check
	last   *Report
	now    func() time.Time
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		CheckTimeout: 2 * time.Second,
		CacheFor:     time.Second,
		checks:       make(map[string]Check),
		now:          time.Now,
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
	c.last = nil
}

// Run returns the aggregate report. The overall status is the worst
// component status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	if c.last != nil && c.CacheFor > 0 && c.now().Sub(c.last.Timestamp) < c.CacheFor {
		r := *c.last
		c.mu.Unlock()
		return r
	}
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]Check, len(names))
	for i, name := range names {
		checks[i] = c.checks[name]
	}
	c.mu.Unlock()

	results := make([]ComponentHealth, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, c.CheckTimeout)
			defer cancel()
			start := time.Now()
			res := check(cctx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(names)),
		Timestamp:  c.now().UTC(),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		if results[i].Status.rank() > report.Status.rank() {
			report.Status = results[i].Status
		}
	}

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report
}

// LiveHandler answers liveness probes without touching dependencies.
func (c *Checker) LiveHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive", "service": service})
	}
}

// ReadyHandler answers readiness probes. Only a down component makes the
// service unready.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			c.logger.Warn("not ready", "components", report.Components)
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
