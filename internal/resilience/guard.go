package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// QuotaState is a snapshot of a guard's usage counters.
type QuotaState struct {
	Service   string `json:"service"`
	CallsUsed int    `json:"calls_used"`
	Failed    int    `json:"failed"`
	Exhausted bool   `json:"exhausted"`
}

// Guard combines a per-service rate limiter with quota tracking. Once a
// QuotaError is observed the guard trips permanently for the run: every
// subsequent Wait fails fast so remaining work can be skipped and
// checkpointed instead of burning retries against a spent quota.
type Guard struct {
	service string
	limiter *rate.Limiter

	mu        sync.Mutex
	used      int
	failed    int
	exhausted bool
}

// NewGuard creates a guard allowing rps requests per second with the given
// burst. A non-positive rps disables rate limiting.
func NewGuard(service string, rps float64, burst int) *Guard {
	var lim *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Guard{service: service, limiter: lim}
}

// Service returns the guarded service name.
func (g *Guard) Service() string { return g.service }

// Wait blocks until the rate limiter admits a call, or fails fast with a
// QuotaError if the quota is already exhausted.
func (g *Guard) Wait(ctx context.Context) error {
	g.mu.Lock()
	exhausted := g.exhausted
	g.mu.Unlock()
	if exhausted {
		return &QuotaError{Service: g.service}
	}
	if g.limiter == nil {
		return ctx.Err()
	}
	return g.limiter.Wait(ctx)
}

// Record updates usage counters from a call outcome and trips the guard on
// quota exhaustion.
func (g *Guard) Record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.used++
	if err != nil {
		g.failed++
		if IsQuotaExhausted(err) {
			g.exhausted = true
		}
	}
}

// Exhausted reports whether the guard has tripped.
func (g *Guard) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exhausted
}

// Snapshot returns the current counters.
func (g *Guard) Snapshot() QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return QuotaState{
		Service:   g.service,
		CallsUsed: g.used,
		Failed:    g.failed,
		Exhausted: g.exhausted,
	}
}

// GuardRegistry holds one guard per external service so phases running in
// the same process share quota state.
type GuardRegistry struct {
	mu     sync.Mutex
	guards map[string]*Guard

	// defaults for guards created lazily via Get.
	rps   float64
	burst int
}

// NewGuardRegistry creates a registry whose lazily created guards use the
// given default rate.
func NewGuardRegistry(rps float64, burst int) *GuardRegistry {
	return &GuardRegistry{
		guards: make(map[string]*Guard),
		rps:    rps,
		burst:  burst,
	}
}

// Get returns the guard for a service, creating it with registry defaults if
// needed.
func (r *GuardRegistry) Get(service string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guards[service]
	if !ok {
		g = NewGuard(service, r.rps, r.burst)
		r.guards[service] = g
	}
	return g
}

// Set registers a preconfigured guard, replacing any existing one.
func (r *GuardRegistry) Set(g *Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[g.service] = g
}

// Snapshots returns the quota state of every registered guard keyed by
// service name.
func (r *GuardRegistry) Snapshots() map[string]QuotaState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]QuotaState, len(r.guards))
	for name, g := range r.guards {
		out[name] = g.Snapshot()
	}
	return out
}
