package cluster

import "errors"

var (
	// ErrUnknownBalancer is returned when no balancer is registered under
	// the requested name.
	ErrUnknownBalancer = errors.New("unknown balancer")

	// ErrEmptyCluster is returned when a router is created without members.
	ErrEmptyCluster = errors.New("cluster has no members")
)
