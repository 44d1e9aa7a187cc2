package engine

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// CycleIDGenerator names decision cycles.
type CycleIDGenerator interface {
	Generate() string
}

// UUIDv7Generator names cycles with UUIDv7 so metrics rows and log lines
// sort by creation time. The zero value is ready to use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// sequence hands out the per-engine cycle seq numbers, starting at 1.
// Two cycles in the same millisecond still order by seq.
type sequence struct {
	n atomic.Int64
}

func (s *sequence) next() int64 {
	return s.n.Add(1)
}
