package system

import "github.com/codewandler/troupe-go/core/actor"

// Provider supplies deployment-time placement overrides by actor name. A
// lookup hit overlays the programmatic creation options, so operators can
// move an actor to another placement without touching code.
type Provider interface {
	Lookup(name string) (actor.CreateOptions, bool)
}

// MapProvider is a static Provider backed by a map.
type MapProvider map[string]actor.CreateOptions

func (p MapProvider) Lookup(name string) (actor.CreateOptions, bool) {
	opts, ok := p[name]
	return opts, ok
}

// overlay applies the non-zero fields of over on top of base.
func overlay(base, over actor.CreateOptions) actor.CreateOptions {
	if over.Mode != "" {
		base.Mode = over.Mode
	}
	if over.ClusterSize != 0 {
		base.ClusterSize = over.ClusterSize
	}
	if over.Balancer != "" {
		base.Balancer = over.Balancer
	}
	if over.OnCrash != "" {
		base.OnCrash = over.OnCrash
	}
	if over.LogLevel != "" {
		base.LogLevel = over.LogLevel
	}
	if over.Host != "" {
		base.Host = over.Host
	}
	if over.Port != 0 {
		base.Port = over.Port
	}
	if len(over.Cluster) > 0 {
		base.Cluster = over.Cluster
	}
	if over.CustomParameters != nil {
		if base.CustomParameters == nil {
			base.CustomParameters = map[string]any{}
		}
		for k, v := range over.CustomParameters {
			base.CustomParameters[k] = v
		}
	}
	return base
}
