package behavior

import (
	"fmt"
	"strings"
	"sync"

	"github.com/codewandler/troupe-go/core/actor"
)

// Factory builds a fresh Definition from the custom parameters of one
// creation call. Factories must be registered under the same name and
// version in every process that may host the behavior.
type Factory func(params map[string]any) (*actor.Definition, error)

// Registry maps behavior name@version to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Version "" is an alias for "1".
func (r *Registry) Register(name, version string, f Factory) error {
	if name == "" {
		return ErrUnnamedBehavior
	}
	k := key(name, version)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[k]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBehavior, k)
	}
	r.factories[k] = f
	return nil
}

// MustRegister is Register but panics on error. Intended for package-level
// wiring at program start.
func (r *Registry) MustRegister(name, version string, f Factory) {
	if err := r.Register(name, version, f); err != nil {
		panic(err)
	}
}

// RegisterDefinition registers a factory returning clones of a fixed
// definition, keyed by the definition's own name and version.
func (r *Registry) RegisterDefinition(def *actor.Definition) error {
	return r.Register(def.Name, def.Version, func(map[string]any) (*actor.Definition, error) {
		return def.Clone(), nil
	})
}

// Resolve returns the factory for name@version.
func (r *Registry) Resolve(name, version string) (Factory, error) {
	k := key(name, version)

	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBehavior, k)
	}
	return f, nil
}

// key normalizes "name" / "name@version" into the registry key.
func key(name, version string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		if version == "" {
			version = name[i+1:]
		}
		name = name[:i]
	}
	if version == "" {
		version = "1"
	}
	return name + "@" + version
}
