// Package inject resolves the dependency graph of shared singleton resources
// referenced by actor behaviors.
//
// Resources are declared up front and instantiated lazily: a resource is
// opened the first time an actor that references it is constructed, exactly
// once per system, with its dependencies opened first. Resources nobody
// references are never opened and never closed. At system shutdown the
// instantiated resources close in reverse dependency order.
package inject

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

var (
	ErrCycle           = errors.New("cyclic resource dependency")
	ErrUnknownResource = errors.New("unknown resource")
	ErrDuplicate       = errors.New("resource already declared")
)

// Resource describes one shared singleton: a name, the names it depends on,
// and the open/close pair managing its lifetime.
type Resource struct {
	Name string
	Deps []string
	// Open builds the resource. deps maps each declared dependency name to
	// its opened instance.
	Open func(ctx context.Context, deps map[string]any) (any, error)
	// Close releases the resource. Optional.
	Close func(ctx context.Context, v any) error
}

// Injector owns the declared resources of one system.
type Injector struct {
	mu    sync.Mutex
	descs map[string]Resource
	built map[string]any
	order []string // instantiation order, for reverse teardown

	sf singleflight.Group
}

func New(resources ...Resource) (*Injector, error) {
	in := &Injector{
		descs: make(map[string]Resource, len(resources)),
		built: make(map[string]any),
	}
	for _, r := range resources {
		if err := in.Declare(r); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// Declare adds a resource descriptor. Declaring is cheap; nothing is opened.
func (in *Injector) Declare(r Resource) error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownResource)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.descs[r.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.Name)
	}
	in.descs[r.Name] = r
	return nil
}

// Resolve opens the named resources plus their transitive dependencies and
// returns name -> instance for exactly the requested names. The whole batch
// is validated for unknown names and cycles before any factory runs; a cycle
// anywhere in the referenced graph aborts the entire call.
func (in *Injector) Resolve(ctx context.Context, names []string) (map[string]any, error) {
	if len(names) == 0 {
		return nil, nil
	}

	if err := in.validate(names); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(names))
	for _, name := range names {
		v, err := in.open(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Destroy closes every instantiated resource in reverse instantiation order.
// Resources that were never opened are skipped.
func (in *Injector) Destroy(ctx context.Context) error {
	in.mu.Lock()
	order := append([]string(nil), in.order...)
	built := in.built
	in.built = make(map[string]any)
	in.order = nil
	in.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		desc := in.descs[name]
		if desc.Close == nil {
			continue
		}
		if err := desc.Close(ctx, built[name]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close resource %s: %w", name, err)
		}
	}
	return firstErr
}

// validate walks the dependency closure without opening anything, failing on
// unknown names and cycles. The cycle error names the resolution stack.
func (in *Injector) validate(names []string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var stack []string

	var walk func(name string) error
	walk = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s -> %s", ErrCycle, strings.Join(stack, " -> "), name)
		}

		desc, ok := in.descs[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResource, name)
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range desc.Deps {
			if err := walk(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range names {
		if err := walk(name); err != nil {
			return err
		}
	}
	return nil
}

// open instantiates name depth-first, memoized; concurrent creations of the
// same resource are deduplicated via singleflight.
func (in *Injector) open(ctx context.Context, name string) (any, error) {
	in.mu.Lock()
	if v, ok := in.built[name]; ok {
		in.mu.Unlock()
		return v, nil
	}
	desc := in.descs[name]
	in.mu.Unlock()

	v, err, _ := in.sf.Do(name, func() (any, error) {
		in.mu.Lock()
		if v, ok := in.built[name]; ok {
			in.mu.Unlock()
			return v, nil
		}
		in.mu.Unlock()

		deps := make(map[string]any, len(desc.Deps))
		for _, dep := range desc.Deps {
			dv, err := in.open(ctx, dep)
			if err != nil {
				return nil, err
			}
			deps[dep] = dv
		}

		v, err := desc.Open(ctx, deps)
		if err != nil {
			return nil, fmt.Errorf("open resource %s: %w", name, err)
		}

		in.mu.Lock()
		in.built[name] = v
		in.order = append(in.order, name)
		in.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
