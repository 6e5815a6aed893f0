package cluster

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/troupe-go/core/actor"
)

// member is a recording stub implementing the reference contract.
type member struct {
	id string

	mu        sync.Mutex
	received  []string
	destroyed bool
}

func newMember(id string) *member { return &member{id: id} }

func (m *member) ID() string        { return m.id }
func (m *member) Name() string      { return m.id }
func (m *member) Mode() actor.Mode  { return actor.ModeInMemory }
func (m *member) Parent() actor.Ref { return nil }

func (m *member) record(topic string) {
	m.mu.Lock()
	m.received = append(m.received, topic)
	m.mu.Unlock()
}

func (m *member) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

func (m *member) Send(ctx context.Context, topic string, args ...any) error {
	m.record(topic)
	return nil
}

func (m *member) SendAndReceive(ctx context.Context, topic string, args ...any) (any, error) {
	m.record(topic)
	return m.id, nil
}

func (m *member) BroadcastAndReceive(ctx context.Context, topic string, args ...any) ([]any, error) {
	res, err := m.SendAndReceive(ctx, topic, args...)
	if err != nil {
		return nil, err
	}
	return []any{res}, nil
}

func (m *member) Destroy(ctx context.Context) error {
	m.mu.Lock()
	m.destroyed = true
	m.mu.Unlock()
	return nil
}

func (m *member) Metrics(ctx context.Context) (actor.Metrics, error) {
	return actor.Metrics{"processed": float64(m.count())}, nil
}

func (m *member) Tree(ctx context.Context) (*actor.TreeNode, error) {
	return &actor.TreeNode{Name: m.id, Location: actor.SelfLocation()}, nil
}

func (m *member) CreateChild(ctx context.Context, def *actor.Definition, opts actor.CreateOptions) (actor.Ref, error) {
	return nil, fmt.Errorf("not supported")
}

func (m *member) ChangeConfiguration(ctx context.Context, opts actor.CreateOptions) error {
	return fmt.Errorf("not supported")
}

func makeCluster(t *testing.T, n int, balancer string) (*Router, []*member) {
	t.Helper()
	members := make([]*member, n)
	refs := make([]actor.Ref, n)
	for i := range n {
		members[i] = newMember(fmt.Sprintf("m-%d", i))
		refs[i] = members[i]
	}
	r, err := NewRouter(RouterOptions{ID: "cluster", Name: "workers", Balancer: balancer}, refs)
	require.NoError(t, err)
	return r, members
}

func TestRouter_RoundRobinDistribution(t *testing.T) {
	r, members := makeCluster(t, 3, "")

	// K sends hit K distinct members, send K+1 wraps to the first
	for range 4 {
		require.NoError(t, r.Send(t.Context(), "work"))
	}
	require.Equal(t, 2, members[0].count())
	require.Equal(t, 1, members[1].count())
	require.Equal(t, 1, members[2].count())
}

func TestRouter_RendezvousIsSticky(t *testing.T) {
	r, _ := makeCluster(t, 5, BalancerRendezvous)

	first, err := r.SendAndReceive(t.Context(), "work", "key-a")
	require.NoError(t, err)
	for range 10 {
		res, err := r.SendAndReceive(t.Context(), "work", "key-a")
		require.NoError(t, err)
		require.Equal(t, first, res)
	}
}

func TestRouter_RandomStaysInCluster(t *testing.T) {
	r, members := makeCluster(t, 3, BalancerRandom)

	for range 30 {
		require.NoError(t, r.Send(t.Context(), "work"))
	}
	total := 0
	for _, m := range members {
		total += m.count()
	}
	require.Equal(t, 30, total)
}

type fixedBalancer struct{ target string }

func (b *fixedBalancer) ClusterChanged([]string) {}

func (b *fixedBalancer) Forward(string, []any) string { return b.target }

func TestRouter_BalancerPickingNonMemberFails(t *testing.T) {
	RegisterBalancer("fixed-bad", func() Balancer { return &fixedBalancer{target: "nope"} })

	r, _ := makeCluster(t, 2, "fixed-bad")
	err := r.Send(t.Context(), "work")
	require.ErrorIs(t, err, actor.ErrNoChildToForward)
}

func TestRouter_UnknownBalancer(t *testing.T) {
	_, err := NewRouter(RouterOptions{Balancer: "no-such"}, []actor.Ref{newMember("m-0")})
	require.ErrorIs(t, err, ErrUnknownBalancer)
}

func TestRouter_EmptyCluster(t *testing.T) {
	_, err := NewRouter(RouterOptions{}, nil)
	require.ErrorIs(t, err, ErrEmptyCluster)
}

func TestRouter_BroadcastCollectsInClusterOrder(t *testing.T) {
	r, _ := makeCluster(t, 3, "")

	res, err := r.BroadcastAndReceive(t.Context(), "ping")
	require.NoError(t, err)
	require.Equal(t, []any{"m-0", "m-1", "m-2"}, res)
}

func TestRouter_MetricsPerMemberPlusSummary(t *testing.T) {
	r, _ := makeCluster(t, 3, "")

	for range 3 {
		require.NoError(t, r.Send(t.Context(), "work"))
	}

	m, err := r.Metrics(t.Context())
	require.NoError(t, err)
	require.Len(t, m, 4)
	require.Contains(t, m, "0")
	require.Contains(t, m, "1")
	require.Contains(t, m, "2")

	summary, ok := m["summary"].(actor.Metrics)
	require.True(t, ok)
	require.Equal(t, float64(3), summary["processed"])
}

func TestRouter_RemoveRenotifiesBalancer(t *testing.T) {
	r, members := makeCluster(t, 3, "")

	require.True(t, r.Remove("m-1"))
	require.False(t, r.Remove("m-1"))
	require.Equal(t, 2, r.Size())

	for range 4 {
		require.NoError(t, r.Send(t.Context(), "work"))
	}
	require.Equal(t, 2, members[0].count())
	require.Equal(t, 0, members[1].count())
	require.Equal(t, 2, members[2].count())
}

func TestRouter_DestroyReachesEveryMember(t *testing.T) {
	r, members := makeCluster(t, 3, "")

	require.NoError(t, r.Destroy(t.Context()))
	for _, m := range members {
		require.True(t, m.destroyed)
	}

	err := r.Send(t.Context(), "work")
	require.ErrorIs(t, err, actor.ErrNoChildToForward)
}

func TestRouter_TreeListsMembers(t *testing.T) {
	r, _ := makeCluster(t, 2, "")

	node, err := r.Tree(t.Context())
	require.NoError(t, err)
	require.Equal(t, "workers", node.Name)
	require.Len(t, node.Children, 2)
}
