// Package health provides liveness and readiness probes for the bot process.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status is the outcome of a single dependency check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusDown Status = "down"
)

// CheckFunc probes one dependency. It must respect the context deadline.
type CheckFunc func(ctx context.Context) Status

// Checker runs named dependency checks. Checks run concurrently with a
// per-check timeout so one stuck dependency cannot wedge the probe.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: 5 * time.Second,
	}
}

// Register adds a named check. Registering the same name twice replaces it.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// DBCheck returns a check that pings the given database.
func DBCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) Status {
		if err := db.PingContext(ctx); err != nil {
			return StatusDown
		}
		return StatusOK
	}
}

// RunAll executes every registered check and returns the per-check results.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			status := fn(checkCtx)
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	return results
}

// IsReady reports whether every check passed.
func (c *Checker) IsReady(ctx context.Context) bool {
	for _, status := range c.RunAll(ctx) {
		if status != StatusOK {
			return false
		}
	}
	return true
}

// LivenessHandler answers /health: the process is up.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ReadinessHandler answers /ready: 200 when all dependencies check out,
// 503 otherwise, with per-check detail either way.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := c.RunAll(r.Context())

		status := "ready"
		code := http.StatusOK
		for _, s := range results {
			if s != StatusOK {
				status = "not_ready"
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"checks": results,
		})
	}
}
