package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chelinho139/glitchbot/internal/outcome"
)

// Script entries with special meaning.
const (
	// ScriptError makes the call fail with a generation error.
	ScriptError = "<error>"
	// ScriptRateLimited makes the call fail with a rate-limit error.
	ScriptRateLimited = "<rate-limited>"
)

// ErrScripted is returned for ScriptError entries.
var ErrScripted = errors.New("scripted generation failure")

// Script lists canned answers per request kind, consumed in order.
type Script struct {
	Thread []string `yaml:"thread" json:"thread"`
	Reply  []string `yaml:"reply" json:"reply"`
	Quote  []string `yaml:"quote" json:"quote"`
}

// LoadScript reads a YAML (or JSON) script file.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse script %s: %w", path, err)
	}
	return s, nil
}

// Scripted is a Generator that replays a Script.
//
// Each kind has its own queue. An exhausted queue yields empty text.
// Every request is recorded so tests can assert what was (or was not) asked.
//
// Thread-safety: Scripted is safe for concurrent use via internal mutex.
type Scripted struct {
	mu     sync.Mutex
	queues map[Kind][]string
	calls  []Request
}

// NewScripted creates a generator replaying s.
func NewScripted(s Script) *Scripted {
	return &Scripted{
		queues: map[Kind][]string{
			KindThread: append([]string(nil), s.Thread...),
			KindReply:  append([]string(nil), s.Reply...),
			KindQuote:  append([]string(nil), s.Quote...),
		},
	}
}

// Generate implements Generator.
func (g *Scripted) Generate(_ context.Context, req Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)

	queue := g.queues[req.Kind]
	if len(queue) == 0 {
		return "", nil
	}
	next := queue[0]
	g.queues[req.Kind] = queue[1:]

	switch next {
	case ScriptError:
		return "", ErrScripted
	case ScriptRateLimited:
		return "", fmt.Errorf("generate %s: %w", req.Kind, outcome.ErrRateLimited)
	}
	return next, nil
}

// Calls returns a copy of every request received so far.
func (g *Scripted) Calls() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Request(nil), g.calls...)
}
