package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/testbench/internal/canonical"
)

// Store is an ordered, dotted-path configuration mapping.
//
// Store is not safe for concurrent mutation; each bootstrapped application
// owns its own instance.
type Store struct {
	root   *node
	frozen bool
}

// Entry is a single flattened leaf of the store.
type Entry struct {
	Path  string
	Value any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{root: newNode()}
}

// NewStoreFrom creates a store seeded with items. Keys are applied in
// canonical order so the result does not depend on map iteration.
func NewStoreFrom(items map[string]any) *Store {
	s := NewStore()
	for _, k := range canonical.SortedKeys(items) {
		s.Set(k, items[k])
	}
	return s
}

// Set replaces the value at path, creating intermediate mappings as needed.
// A scalar sitting where an intermediate mapping is required is replaced.
//
// Panics if the store is frozen.
func (s *Store) Set(path string, value any) {
	s.mustBeWritable("set", path)

	segs := splitPath(path)
	n := s.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := n.values[seg].(*node)
		if !ok {
			child = newNode()
			n.put(seg, child)
		}
		n = child
	}
	n.put(segs[len(segs)-1], toInternal(value))
}

// Get returns the value at path, or def when nothing is stored there.
// Mappings are returned as fresh map[string]any copies.
func (s *Store) Get(path string, def any) any {
	v, ok := s.lookup(path)
	if !ok {
		return def
	}
	return toExternal(v)
}

// Has reports whether a value exists at path.
func (s *Store) Has(path string) bool {
	_, ok := s.lookup(path)
	return ok
}

// String returns the value at path when it is a string, or def otherwise.
func (s *Store) String(path, def string) string {
	if v, ok := s.Get(path, nil).(string); ok {
		return v
	}
	return def
}

// Merge shallow-merges partial into the mapping at path. Colliding keys are
// overwritten; other existing keys are kept. A missing or non-mapping value
// at path is replaced by a new mapping first.
//
// Panics if the store is frozen.
func (s *Store) Merge(path string, partial map[string]any) {
	s.mustBeWritable("merge", path)

	target, ok := s.lookupNode(path)
	if !ok {
		s.Set(path, map[string]any{})
		target, _ = s.lookupNode(path)
	}
	for _, k := range canonical.SortedKeys(partial) {
		target.put(k, toInternal(partial[k]))
	}
}

// Keys returns the top-level keys in insertion order.
func (s *Store) Keys() []string {
	out := make([]string, len(s.root.keys))
	copy(out, s.root.keys)
	return out
}

// All returns a deep copy of the whole store.
func (s *Store) All() map[string]any {
	return toExternal(s.root).(map[string]any)
}

// Entries flattens the store into dotted leaf paths in insertion order.
// Empty mappings are reported as leaves.
func (s *Store) Entries() []Entry {
	var out []Entry
	var walk func(prefix string, n *node)
	walk = func(prefix string, n *node) {
		for _, k := range n.keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if child, ok := n.values[k].(*node); ok && len(child.keys) > 0 {
				walk(path, child)
				continue
			}
			out = append(out, Entry{Path: path, Value: toExternal(n.values[k])})
		}
	}
	walk("", s.root)
	return out
}

// Fingerprint returns the canonical SHA-256 fingerprint of the store.
func (s *Store) Fingerprint() (string, error) {
	return canonical.Fingerprint(canonical.DomainConfig, s.All())
}

// Freeze makes the store read-only.
func (s *Store) Freeze() {
	s.frozen = true
}

// Frozen reports whether Freeze has been called.
func (s *Store) Frozen() bool {
	return s.frozen
}

func (s *Store) mustBeWritable(op, path string) {
	if s.frozen {
		panic(fmt.Sprintf("config: %s %q on frozen store", op, path))
	}
}

func (s *Store) lookup(path string) (any, bool) {
	var cur any = s.root
	for _, seg := range splitPath(path) {
		n, ok := cur.(*node)
		if !ok {
			return nil, false
		}
		cur, ok = n.values[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (s *Store) lookupNode(path string) (*node, bool) {
	v, ok := s.lookup(path)
	if !ok {
		return nil, false
	}
	n, ok := v.(*node)
	return n, ok
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// node is an insertion-ordered mapping.
type node struct {
	keys   []string
	values map[string]any
}

func newNode() *node {
	return &node{values: make(map[string]any)}
}

func (n *node) put(key string, value any) {
	if _, exists := n.values[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.values[key] = value
}

// toInternal converts mappings into ordered nodes and deep-copies lists so
// the store never aliases caller-owned data.
func toInternal(v any) any {
	switch val := v.(type) {
	case *node:
		return val
	case map[string]any:
		n := newNode()
		for _, k := range canonical.SortedKeys(val) {
			n.put(k, toInternal(val[k]))
		}
		return n
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = toExternal(toInternal(elem))
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return toInternal(m)
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = toExternal(toInternal(rv.Index(i).Interface()))
		}
		return out
	}
	return v
}

func toExternal(v any) any {
	switch val := v.(type) {
	case *node:
		m := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			m[k] = toExternal(val.values[k])
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = toExternal(elem)
		}
		return out
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = toExternal(elem)
		}
		return m
	}
	return v
}
