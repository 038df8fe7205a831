package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// liveness answers 200 as long as the process serves HTTP. The orchestrator
// restarts the pod when this stops responding.
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness runs every registered checker concurrently and answers 200 only
// when all of them pass. A failing dependency takes the plane out of the load
// balancer until it recovers.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	// The probe itself has a deadline; a hung dependency must not make the
	// orchestrator wait past it.
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	results := make(map[string]string)
	failed := false

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// WARN, not ERROR: the orchestrator retries and the alert
				// belongs to the dependency, not the probe.
				s.logger.Warn("readiness check failed",
					slog.String("component", c.Name()),
					slog.String("error", err.Error()),
				)
				results[c.Name()] = fmt.Sprintf("down: %v", err)
				failed = true
				return
			}
			results[c.Name()] = "up"
		}(checker)
	}

	wg.Wait()

	w.Header().Set("Content-Type", "application/json")
	if failed {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	// The body is for humans; the orchestrator reads only the status code, so
	// an encode failure after the header is written is not actionable.
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": results,
	})
}
