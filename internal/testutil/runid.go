package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDGenerator returns the same run id every time, so stored runs
// and golden reports are byte-identical across executions.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id. An empty id becomes
// "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}

// SequenceRunIDGenerator returns prefix-1, prefix-2, ...
type SequenceRunIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceRunIDGenerator creates a counting generator.
func NewSequenceRunIDGenerator(prefix string) *SequenceRunIDGenerator {
	return &SequenceRunIDGenerator{prefix: prefix}
}

// Generate implements engine.RunIDGenerator.
func (g *SequenceRunIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
