// Package health aggregates dependency probes into liveness and readiness
// reports.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const probeTimeout = 5 * time.Second

// Probe checks one dependency.
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Report is the aggregate readiness report.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Healthy reports whether every probe passed.
func (r *Report) Healthy() bool {
	return r.Status == "ok"
}

// Checker runs registered probes on demand.
type Checker struct {
	probes []Probe
	logger *zap.Logger
}

// New creates a Checker over the given probes.
func New(logger *zap.Logger, probes ...Probe) *Checker {
	return &Checker{probes: probes, logger: logger}
}

// Readiness runs all probes concurrently and aggregates the results.
func (c *Checker) Readiness(ctx context.Context) *Report {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	results := make([]CheckResult, len(c.probes))
	var wg sync.WaitGroup
	for i, p := range c.probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			start := time.Now()
			err := p.Check(ctx)
			results[i] = CheckResult{
				Name:      p.Name(),
				Status:    "ok",
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				results[i].Status = "failed"
				results[i].Error = err.Error()
				c.logger.Warn("health probe failed", zap.String("probe", p.Name()), zap.Error(err))
			}
		}(i, p)
	}
	wg.Wait()

	report := &Report{Status: "ok", Checks: results}
	for _, r := range results {
		if r.Status != "ok" {
			report.Status = "degraded"
			break
		}
	}
	return report
}

type funcProbe struct {
	name string
	fn   func(ctx context.Context) error
}

func (p funcProbe) Name() string                    { return p.name }
func (p funcProbe) Check(ctx context.Context) error { return p.fn(ctx) }

// ProbeFunc adapts a function into a Probe.
func ProbeFunc(name string, fn func(ctx context.Context) error) Probe {
	return funcProbe{name: name, fn: fn}
}

// Pinger is the connection-check surface of a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Postgres probes the database connection.
func Postgres(p Pinger) Probe {
	return ProbeFunc("postgres", p.Ping)
}

// Redis probes the shared cache connection.
func Redis(client *redis.Client) Probe {
	return ProbeFunc("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}
