package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewActorMetrics(reg)

	require.NotNil(t, m)

	timer := m.MessageDuration("say")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.MessageProcessed("say", true)
	m.MessageProcessed("say", false)
	m.MailboxDepth("actor-1", 7)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewTransportMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransportMetrics(reg)

	require.NotNil(t, m)

	timer := m.RequestDuration("actor-message")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.RequestCompleted("actor-message", true)
	m.PendingRequests("actor-1", 3)
	m.Respawned("actor-1")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	all := NewAllMetrics(reg)

	require.NotNil(t, all.Actor)
	require.NotNil(t, all.Transport)
}
