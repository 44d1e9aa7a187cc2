package testutil

import (
	"fmt"
	"sync"
)

// SequentialCycleIDs generates predictable cycle ids: "<prefix>-0001",
// "<prefix>-0002", and so on.
//
// This enables golden comparison of decision traces, which would otherwise
// carry random UUIDs. Implements engine.CycleIDGenerator.
type SequentialCycleIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialCycleIDs creates a generator. An empty prefix uses "cycle".
func NewSequentialCycleIDs(prefix string) *SequentialCycleIDs {
	if prefix == "" {
		prefix = "cycle"
	}
	return &SequentialCycleIDs{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequentialCycleIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
