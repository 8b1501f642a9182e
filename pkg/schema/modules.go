package schema

import (
	"sort"
	"sync"

	"github.com/petrijr/herald/pkg/api"
)

// Optional modules are registered at init time by packages that pull in
// heavier dependencies, so that importing pkg/schema alone stays light.
var modules = struct {
	mu sync.RWMutex
	m  map[string]map[string]any
}{m: map[string]map[string]any{}}

// RegisterModule makes exports available under name. Registering the same
// name again replaces its exports.
func RegisterModule(name string, exports map[string]any) {
	if name == "" {
		panic("schema: module name must not be empty")
	}
	cp := make(map[string]any, len(exports))
	for k, v := range exports {
		cp[k] = v
	}
	modules.mu.Lock()
	modules.m[name] = cp
	modules.mu.Unlock()
}

// UnregisterModule removes a module. Mostly useful in tests.
func UnregisterModule(name string) {
	modules.mu.Lock()
	delete(modules.m, name)
	modules.mu.Unlock()
}

// LookupExport returns a registered export.
func LookupExport(module, export string) (any, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	exports, ok := modules.m[module]
	if !ok {
		return nil, false
	}
	v, ok := exports[export]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Requirement names a module and the exports an adapter needs from it.
type Requirement struct {
	Name    string
	Exports []string
}

// CheckRequirements verifies that every requirement is registered with all
// of its exports. All missing modules are reported in one error.
func CheckRequirements(reqs []Requirement, usageReason string) error {
	missing := map[string]struct{}{}
	for _, r := range reqs {
		for _, exp := range r.Exports {
			if _, ok := LookupExport(r.Name, exp); !ok {
				missing[r.Name] = struct{}{}
				break
			}
		}
		if len(r.Exports) == 0 {
			modules.mu.RLock()
			_, ok := modules.m[r.Name]
			modules.mu.RUnlock()
			if !ok {
				missing[r.Name] = struct{}{}
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for n := range missing {
		names = append(names, n)
	}
	sort.Strings(names)
	return api.NewMissingDependencyError(usageReason, names)
}
