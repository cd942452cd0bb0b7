package app

import (
	"sort"
	"sync"
)

// Globals is the facade-style global resolution registry owned by one
// Context. Clearing it is an explicit pipeline step.
type Globals struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewGlobals creates an empty registry.
func NewGlobals() *Globals {
	return &Globals{entries: make(map[string]any)}
}

// Set registers value under name, replacing any previous entry.
func (g *Globals) Set(name string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[name] = value
}

// Get returns the entry for name.
func (g *Globals) Get(name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.entries[name]
	return v, ok
}

// Names returns the registered names, sorted.
func (g *Globals) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.entries))
	for n := range g.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (g *Globals) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Clear removes every entry.
func (g *Globals) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = make(map[string]any)
}
