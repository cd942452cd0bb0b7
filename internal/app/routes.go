package app

import "sync"

// Route is an entry in the hosted route table. Only the name index is
// maintained here; dispatch belongs to the hosted framework.
type Route struct {
	Method string
	Path   string
	Name   string
}

// RouteTable holds routes added by providers and a name lookup index that
// must be refreshed after routes change.
type RouteTable struct {
	mu     sync.RWMutex
	routes []Route
	byName map[string]Route
}

// NewRouteTable creates an empty table.
func NewRouteTable() *RouteTable {
	return &RouteTable{byName: make(map[string]Route)}
}

// Add appends a route. The name index is not updated until
// RefreshNameLookups.
func (t *RouteTable) Add(r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, r)
}

// RefreshNameLookups rebuilds the name index. A later route with the same
// name wins.
func (t *RouteTable) RefreshNameLookups() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byName = make(map[string]Route, len(t.routes))
	for _, r := range t.routes {
		if r.Name != "" {
			t.byName[r.Name] = r
		}
	}
}

// ByName looks a route up in the name index.
func (t *RouteTable) ByName(name string) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byName[name]
	return r, ok
}

// Routes returns a copy of all routes in insertion order.
func (t *RouteTable) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}
