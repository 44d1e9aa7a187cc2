package generate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCallsPerHour is the default generation allowance.
const DefaultCallsPerHour = 10

// Budget is a token bucket limiting generation calls.
//
// The bucket holds up to callsPerHour tokens and refills continuously at
// callsPerHour per hour, so a burst can use the whole allowance and then
// waits for the refill.
//
// Thread-safety: Budget is safe for concurrent use.
type Budget struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	perHour  int
	now      func() time.Time
	rejected int
}

// NewBudget creates a budget of callsPerHour calls. now supplies the
// current time; nil uses time.Now.
func NewBudget(callsPerHour int, now func() time.Time) *Budget {
	if callsPerHour <= 0 {
		callsPerHour = DefaultCallsPerHour
	}
	if now == nil {
		now = time.Now
	}
	return &Budget{
		limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(callsPerHour)), callsPerHour),
		perHour: callsPerHour,
		now:     now,
	}
}

// Allow consumes one call if available.
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limiter.AllowN(b.now(), 1) {
		return true
	}
	b.rejected++
	return false
}

// Remaining returns the whole calls currently available.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.limiter.TokensAt(b.now()))
}

// Rejected returns how many calls were refused so far.
func (b *Budget) Rejected() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// Budgeted wraps a generator with a call budget.
type Budgeted struct {
	next   Generator
	budget *Budget
	logger *slog.Logger
}

// WithBudget returns a generator that consults budget before each call.
// When the budget is exhausted it returns empty text without calling next,
// which the engine reports as NoMeaningfulContent.
func WithBudget(next Generator, budget *Budget, logger *slog.Logger) *Budgeted {
	if logger == nil {
		logger = slog.Default()
	}
	return &Budgeted{next: next, budget: budget, logger: logger}
}

// Generate implements Generator.
func (g *Budgeted) Generate(ctx context.Context, req Request) (string, error) {
	if !g.budget.Allow() {
		g.logger.Warn("generation budget exhausted",
			"kind", req.Kind,
			"calls_per_hour", g.budget.perHour)
		return "", nil
	}
	return g.next.Generate(ctx, req)
}
