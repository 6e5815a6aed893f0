package behavior

import (
	"fmt"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/ds"
)

// FormatFactoryV1 is the only supported behavior wire format: the behavior
// is rebuilt from a pre-registered factory, never from transmitted code.
const FormatFactoryV1 = "factory/v1"

// Descriptor is the transferable, re-constructible form of a behavior. It is
// produced once per non-local creation and interpreted exactly once on
// arrival.
type Descriptor struct {
	Format    string   `json:"format"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Mixins    []string `json:"mixins,omitempty"`
	Topics    []string `json:"topics,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

// Compile turns a definition into its transferable descriptor. The behavior
// must carry a name so the receiving registry can locate its factory.
func Compile(def *actor.Definition) (Descriptor, error) {
	if def == nil {
		return Descriptor{}, actor.ErrNoBehavior
	}
	if def.Name == "" {
		return Descriptor{}, ErrUnnamedBehavior
	}
	version := def.Version
	if version == "" {
		version = "1"
	}
	return Descriptor{
		Format:    FormatFactoryV1,
		Name:      def.Name,
		Version:   version,
		Mixins:    append([]string(nil), def.Mixins...),
		Topics:    def.Topics(),
		Resources: append([]string(nil), def.Resources...),
	}, nil
}

// Reconstruct rebuilds a runnable definition from a descriptor using this
// registry's factories, composing mixin capabilities in declaration order.
func (r *Registry) Reconstruct(desc Descriptor, params map[string]any) (*actor.Definition, error) {
	if desc.Format != FormatFactoryV1 {
		return nil, fmt.Errorf("%w: %q", ErrBadFormat, desc.Format)
	}

	f, err := r.Resolve(desc.Name, desc.Version)
	if err != nil {
		return nil, err
	}
	base, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("behavior factory %s: %w", desc.Name, err)
	}

	mixins := desc.Mixins
	if len(mixins) == 0 {
		mixins = base.Mixins
	}
	return r.compose(base, mixins, params)
}

// Compose resolves a definition's mixins against the registry and returns
// the flattened behavior. Definitions without mixins are returned as-is.
func (r *Registry) Compose(def *actor.Definition, params map[string]any) (*actor.Definition, error) {
	if len(def.Mixins) == 0 {
		return def, nil
	}
	return r.compose(def, def.Mixins, params)
}

func (r *Registry) compose(base *actor.Definition, mixins []string, params map[string]any) (*actor.Definition, error) {
	if len(mixins) == 0 {
		return base, nil
	}

	out := base.Clone()
	out.Handlers = make(actor.Handlers)
	out.Mixins = nil

	var (
		inits    []func(*actor.Context) error
		destroys []func(*actor.Context) error
		res      = ds.NewSet[string]()
	)

	for _, name := range mixins {
		f, err := r.Resolve(name, "")
		if err != nil {
			return nil, fmt.Errorf("mixin %s: %w", name, err)
		}
		part, err := f(params)
		if err != nil {
			return nil, fmt.Errorf("mixin factory %s: %w", name, err)
		}
		// nested mixins flatten depth-first
		part, err = r.Compose(part, params)
		if err != nil {
			return nil, err
		}

		for topic, h := range part.Handlers {
			out.Handlers[topic] = h
		}
		for _, n := range part.Resources {
			res.Add(n)
		}
		if part.Initialize != nil {
			inits = append(inits, part.Initialize)
		}
		if part.Destroy != nil {
			destroys = append(destroys, part.Destroy)
		}
	}

	// the definition's own members win over every mixin
	for topic, h := range base.Handlers {
		out.Handlers[topic] = h
	}
	for _, n := range base.Resources {
		res.Add(n)
	}
	out.Resources = res.Values()
	if base.Initialize != nil {
		inits = append(inits, base.Initialize)
	}
	if base.Destroy != nil {
		destroys = append(destroys, base.Destroy)
	}

	if len(inits) > 0 {
		out.Initialize = func(c *actor.Context) error {
			for _, init := range inits {
				if err := init(c); err != nil {
					return err
				}
			}
			return nil
		}
	}
	if len(destroys) > 0 {
		out.Destroy = func(c *actor.Context) error {
			// teardown runs in reverse composition order
			for i := len(destroys) - 1; i >= 0; i-- {
				if err := destroys[i](c); err != nil {
					return err
				}
			}
			return nil
		}
	}

	return out, nil
}
