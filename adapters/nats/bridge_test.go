package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/troupe-go/core/bus"
)

func TestBridge_TwoBusesShareOneEventSpace(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	connect := ReuseConnection(NewTestContainer(t))

	a := bus.New(bus.Options{})
	b := bus.New(bus.Options{})

	detachA, err := AttachBus(a, connect, BridgeOptions{Subject: "troupe.bus.test"})
	require.NoError(t, err)
	defer detachA()

	detachB, err := AttachBus(b, connect, BridgeOptions{Subject: "troupe.bus.test"})
	require.NoError(t, err)
	defer detachB()

	gotB, cancelB, err := b.Subscribe("node/.*")
	require.NoError(t, err)
	defer cancelB()

	gotA, cancelA, err := a.Subscribe("node/.*")
	require.NoError(t, err)
	defer cancelA()

	a.Publish("node/up", "a-1")

	select {
	case ev := <-gotB:
		require.Equal(t, "node/up", ev.Topic)
		require.Equal(t, "a-1", ev.Data)
		require.Equal(t, a.Origin(), ev.Origin)
	case <-time.After(5 * time.Second):
		t.Fatal("event never crossed the broker")
	}

	// the publisher's own subscriber sees exactly one copy, the broker echo
	// is suppressed by origin
	select {
	case ev := <-gotA:
		require.Equal(t, "node/up", ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("local delivery missing")
	}
	select {
	case ev := <-gotA:
		t.Fatalf("duplicate local delivery: %v", ev)
	case <-time.After(500 * time.Millisecond):
	}
}
