// Package health implements liveness and readiness probes for the HTTP
// server. Probes run periodically in the background; the endpoints only
// report the latest recorded state and never execute a check inline.
//
// A probe flips to failing after defaultFailureThreshold consecutive errors
// and back to passing after defaultSuccessThreshold consecutive successes,
// which keeps a single slow database ping from bouncing the pod.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Probes that have never run are treated as passing so that registration
// order does not race readiness at startup.
const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// CheckFunc reports the state of one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// probe holds one registered check and its recorded state. All state is
// guarded by mu: the ticker goroutine writes, HTTP handlers read.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	mu      sync.Mutex
	passing bool
	lastErr error
	fails   int
	passes  int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	return &probe{
		name:    name,
		timeout: timeout,
		check:   check,
		passing: true,
	}
}

// observe runs the check once and applies the thresholds.
func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = err
	if err != nil {
		p.passes = 0
		p.fails++
		if p.fails >= defaultFailureThreshold {
			p.passing = false
		}
		return
	}
	p.fails = 0
	p.passes++
	if p.passes >= defaultSuccessThreshold {
		p.passing = true
	}
}

// state returns the recorded status and the error behind it, if any.
func (p *probe) state() (passing bool, lastErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passing, p.lastErr
}

// Health aggregates liveness and readiness probes and serves the probe
// endpoints. The zero value is not usable; construct with New.
type Health struct {
	mu     sync.Mutex
	live   []*probe
	ready  []*probe
	accept bool
	cancel context.CancelFunc
}

// New returns a Health that reports not-ready until SetReady(true) is called.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe for /livez. Liveness failures mean the
// process itself is broken (leaked goroutines, deadlock) and should be
// restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a probe for /readyz. Readiness failures mean a
// dependency is down and traffic should be routed elsewhere.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = append(h.ready, newProbe(name, timeout, check))
}

// Start launches one goroutine per registered probe, each observing at the
// given interval until Stop is called or ctx ends. Register all probes before
// calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe(nil), h.live...), h.ready...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.observe(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.observe(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. The server calls SetReady(true)
// once wiring is complete and SetReady(false) at the start of shutdown so the
// load balancer drains it before the listener closes.
func (h *Health) SetReady(accept bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accept = accept
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (h *Health) IsReady() bool {
	h.mu.Lock()
	accept := h.accept
	probes := h.ready
	h.mu.Unlock()

	if !accept {
		return false
	}
	for _, p := range probes {
		if ok, _ := p.state(); !ok {
			return false
		}
	}
	return true
}

// probeReport is the body served by both endpoints.
type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while all liveness probes pass, 503 with
// per-probe errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := h.live
	h.mu.Unlock()

	writeReport(w, failing(probes))
}

// ReadyEndpoint serves /readyz: 200 while the gate is open and all readiness
// probes pass, 503 with details otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	accept := h.accept
	probes := h.ready
	h.mu.Unlock()

	fails := failing(probes)
	if !accept {
		fails["service"] = "not accepting traffic"
	}
	writeReport(w, fails)
}

func failing(probes []*probe) map[string]string {
	fails := make(map[string]string)
	for _, p := range probes {
		ok, err := p.state()
		if ok {
			continue
		}
		if err != nil {
			fails[p.name] = err.Error()
		} else {
			fails[p.name] = "failing"
		}
	}
	return fails
}

func writeReport(w http.ResponseWriter, fails map[string]string) {
	report := probeReport{Status: "ok"}
	code := http.StatusOK
	if len(fails) > 0 {
		report.Status = "unhealthy"
		report.Checks = fails
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
