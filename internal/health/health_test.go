package health_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/health"
)

func TestReadinessAllPassing(t *testing.T) {
	c := health.New(zap.NewNop(),
		health.ProbeFunc("postgres", func(context.Context) error { return nil }),
		health.ProbeFunc("signing-key", func(context.Context) error { return nil }),
	)

	report := c.Readiness(context.Background())
	if !report.Healthy() {
		t.Fatalf("report = %+v, want healthy", report)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(report.Checks))
	}
	for _, check := range report.Checks {
		if check.Status != "ok" {
			t.Errorf("check %s = %q, want ok", check.Name, check.Status)
		}
	}
}

func TestReadinessDegraded(t *testing.T) {
	c := health.New(zap.NewNop(),
		health.ProbeFunc("postgres", func(context.Context) error { return nil }),
		health.ProbeFunc("redis", func(context.Context) error { return errors.New("connection refused") }),
	)

	report := c.Readiness(context.Background())
	if report.Healthy() {
		t.Fatal("report should be degraded")
	}
	if report.Status != "degraded" {
		t.Errorf("status = %q, want degraded", report.Status)
	}

	var failed *health.CheckResult
	for i := range report.Checks {
		if report.Checks[i].Name == "redis" {
			failed = &report.Checks[i]
		}
	}
	if failed == nil || failed.Status != "failed" || failed.Error != "connection refused" {
		t.Errorf("redis check = %+v, want failed with error", failed)
	}
}

func TestReadinessWithNoProbes(t *testing.T) {
	report := health.New(zap.NewNop()).Readiness(context.Background())
	if !report.Healthy() {
		t.Fatalf("empty checker should be healthy, got %+v", report)
	}
}
