package cluster

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Balancer picks the member a message is forwarded to. Implementations are
// called from a single goroutine per router and need no internal locking.
type Balancer interface {
	// ClusterChanged is called before the first forward and again after
	// every membership change, with the member ids in cluster order.
	ClusterChanged(members []string)

	// Forward returns the id of the member that should receive the message.
	// Returning an id that is not a member fails the send with
	// actor.ErrNoChildToForward.
	Forward(topic string, args []any) string
}

// Factory builds a fresh balancer instance for one router.
type Factory func() Balancer

const (
	BalancerRoundRobin = "round-robin"
	BalancerRandom     = "random"
	BalancerRendezvous = "rendezvous"
)

var (
	balancersMu sync.RWMutex
	balancers   = map[string]Factory{
		BalancerRoundRobin: func() Balancer { return &roundRobin{} },
		BalancerRandom:     func() Balancer { return &random{} },
		BalancerRendezvous: func() Balancer { return &rendezvous{} },
	}
)

// RegisterBalancer makes a balancer available under name. Registering an
// already-taken name overwrites the previous factory.
func RegisterBalancer(name string, f Factory) {
	balancersMu.Lock()
	defer balancersMu.Unlock()
	balancers[name] = f
}

// NewBalancer instantiates the named balancer. The empty name selects
// round-robin.
func NewBalancer(name string) (Balancer, error) {
	if name == "" {
		name = BalancerRoundRobin
	}
	balancersMu.RLock()
	f, ok := balancers[name]
	balancersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBalancer, name)
	}
	return f(), nil
}

// roundRobin walks the members in cluster order and wraps around.
type roundRobin struct {
	members []string
	next    int
}

func (b *roundRobin) ClusterChanged(members []string) {
	b.members = members
	b.next = 0
}

func (b *roundRobin) Forward(string, []any) string {
	if len(b.members) == 0 {
		return ""
	}
	id := b.members[b.next%len(b.members)]
	b.next++
	return id
}

type random struct {
	members []string
}

func (b *random) ClusterChanged(members []string) { b.members = members }

func (b *random) Forward(string, []any) string {
	if len(b.members) == 0 {
		return ""
	}
	return b.members[rand.IntN(len(b.members))]
}

// rendezvous scores every member against the message key with highest-random-
// weight hashing, so equal keys stick to the same member across calls and
// most keys keep their member when the cluster resizes.
type rendezvous struct {
	members []string
}

func (b *rendezvous) ClusterChanged(members []string) { b.members = members }

func (b *rendezvous) Forward(topic string, args []any) string {
	key := topic
	if len(args) > 0 {
		key = fmt.Sprintf("%s/%v", topic, args[0])
	}

	var (
		best      string
		bestScore uint64
		found     bool
	)
	for _, id := range b.members {
		s := hrwScore(key, id)
		if !found || s > bestScore {
			best, bestScore, found = id, s, true
		}
	}
	return best
}

func hrwScore(key, memberID string) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(memberID))

	return binary.BigEndian.Uint64(h.Sum(nil))
}
