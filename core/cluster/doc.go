// Package cluster fans a single actor reference out over N identically
// configured members. The router implements the same reference contract as
// any other placement, so callers talk to a cluster exactly like they talk
// to a singleton actor. A pluggable balancer picks the member for each
// message; broadcast operations reach every member.
package cluster
