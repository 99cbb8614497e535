// Package urls maps route names to paths so views can build redirect targets
// without hard-coding them.
package urls

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/OpenNSW/enrollment/internal/apperror"
)

// ErrNoReverseMatch is returned for unknown route names or wrong parameters.
var ErrNoReverseMatch = apperror.New(apperror.CodeImproperlyConfigured, "no reverse match")

// Reverser holds named path patterns. Patterns use gin syntax, e.g.
// "/enroll/change/:id/".
type Reverser struct {
	mu     sync.RWMutex
	routes map[string]string
}

func NewReverser() *Reverser {
	return &Reverser{routes: make(map[string]string)}
}

// Register adds a named pattern. Names must be unique.
func (r *Reverser) Register(name, pattern string) error {
	if name == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("urls: invalid route %q -> %q", name, pattern)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.routes[name]; ok {
		return fmt.Errorf("urls: route %q already registered as %q", name, existing)
	}
	r.routes[name] = pattern
	return nil
}

// Reverse returns the path for name with params substituted for the ":param"
// segments in order.
func (r *Reverser) Reverse(name string, params ...string) (string, error) {
	r.mu.RLock()
	pattern, ok := r.routes[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown route %q", ErrNoReverseMatch, name)
	}

	segments := strings.Split(pattern, "/")
	next := 0
	for i, segment := range segments {
		if !strings.HasPrefix(segment, ":") && !strings.HasPrefix(segment, "*") {
			continue
		}
		if next >= len(params) {
			return "", fmt.Errorf("%w: route %q expects more parameters", ErrNoReverseMatch, name)
		}
		segments[i] = url.PathEscape(params[next])
		next++
	}
	if next != len(params) {
		return "", fmt.Errorf("%w: route %q takes %d parameters, got %d", ErrNoReverseMatch, name, next, len(params))
	}
	return strings.Join(segments, "/"), nil
}

// MustReverse is Reverse for names known at startup.
func (r *Reverser) MustReverse(name string, params ...string) string {
	path, err := r.Reverse(name, params...)
	if err != nil {
		panic(err)
	}
	return path
}

// Names returns the registered route names in order.
func (r *Reverser) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
