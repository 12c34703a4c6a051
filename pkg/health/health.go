// Package health serves liveness and readiness probes.
//
// Every check runs on its own ticker. A check turns failing only after
// FailureThreshold consecutive errors and recovers after SuccessThreshold
// consecutive successes, so one slow upstream answer does not flip the probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc reports the health of one dependency; nil means healthy.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe uint8

const (
	Liveness Probe = iota
	Readiness
)

func (p Probe) String() string {
	if p == Readiness {
		return "readiness"
	}
	return "liveness"
}

// Check describes a registered check. Zero thresholds default to 3 failures
// and 1 success; a zero Timeout defaults to one second.
type Check struct {
	Name             string
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	Func             CheckFunc
}

type checkState struct {
	Check
	probe Probe

	mu        sync.Mutex
	healthy   bool
	lastErr   error
	changedAt time.Time
	fails     int
	oks       int
}

type snapshot struct {
	name      string
	healthy   bool
	err       error
	changedAt time.Time
}

func (s *checkState) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{name: s.Name, healthy: s.healthy, err: s.lastErr, changedAt: s.changedAt}
}

// observe records one check result and reports whether the health flipped.
func (s *checkState) observe(err error, now time.Time) (flipped, healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	was := s.healthy
	if err != nil {
		s.oks = 0
		s.fails++
		if s.fails >= s.FailureThreshold {
			s.healthy = false
		}
	} else {
		s.fails = 0
		s.oks++
		if s.oks >= s.SuccessThreshold {
			s.healthy = true
		}
	}
	if was != s.healthy {
		s.changedAt = now
	}
	return was != s.healthy, s.healthy
}

func (s *checkState) run(ctx context.Context, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	err := s.Func(ctx)
	flipped, healthy := s.observe(err, time.Now())
	if !flipped {
		return
	}
	if healthy {
		lg.Info("Health check recovered", zap.String("check", s.Name), zap.Stringer("probe", s.probe))
	} else {
		lg.Warn("Health check failing", zap.String("check", s.Name), zap.Stringer("probe", s.probe), zap.Error(err))
	}
}

// Health aggregates checks and serves their state over HTTP.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*checkState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Health that is not ready until SetReady(true).
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Register adds a check to probe. Checks start healthy.
func (h *Health) Register(probe Probe, c Check) {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, &checkState{Check: c, probe: probe, healthy: true})
}

// Start runs every registered check now and then once per interval until
// Stop is called or ctx ends.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := append([]*checkState(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx, h.lg)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx, h.lg)
				}
			}
		}()
	}
}

// Stop halts the check loops and waits for them to exit.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

// SetReady toggles the manual readiness gate, closed on startup and during
// graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Healthy reports whether every check of probe passes. Readiness also
// requires the manual gate to be open.
func (h *Health) Healthy(probe Probe) bool {
	if probe == Readiness && !h.ready.Load() {
		return false
	}
	for _, s := range h.snapshots(probe) {
		if !s.healthy {
			return false
		}
	}
	return true
}

// Handler serves probe state: 200 when healthy, 503 with the failing checks
// otherwise.
func (h *Health) Handler(probe Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snaps := h.snapshots(probe)
		gateClosed := probe == Readiness && !h.ready.Load()

		ok := !gateClosed
		for _, s := range snaps {
			ok = ok && s.healthy
		}

		var e jx.Encoder
		e.ObjStart()
		e.FieldStart("status")
		if ok {
			e.Str("ok")
		} else {
			e.Str("unhealthy")
		}
		if !ok {
			e.FieldStart("checks")
			e.ObjStart()
			if gateClosed {
				e.FieldStart("_readiness")
				e.Str("service is not ready")
			}
			for _, s := range snaps {
				if s.healthy {
					continue
				}
				e.FieldStart(s.name)
				if s.err != nil {
					e.Str(s.err.Error())
				} else {
					e.Str("check is unhealthy")
				}
			}
			e.ObjEnd()
		}
		e.ObjEnd()

		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_, _ = w.Write(e.Bytes())
	}
}

func (h *Health) snapshots(probe Probe) []snapshot {
	h.mu.RLock()
	var states []*checkState
	for _, c := range h.checks {
		if c.probe == probe {
			states = append(states, c)
		}
	}
	h.mu.RUnlock()

	out := make([]snapshot, len(states))
	for i, c := range states {
		out[i] = c.snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
