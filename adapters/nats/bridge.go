// Package nats bridges the system bus over a NATS subject, so systems in
// unrelated processes (no parent/child transport between them) still share
// one event space.
package nats

import (
	"encoding/json"
	"fmt"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/troupe-go/core/bus"
)

const defaultSubject = "troupe.bus"

// BridgeOptions configure a bus bridge.
type BridgeOptions struct {
	// Subject carries the bus events. Defaults to "troupe.bus". All systems
	// bridged over the same subject form one event space.
	Subject string
}

// natsBridge is registered with the local bus and fans its events out to the
// subject; inbound subject traffic is injected back into the bus. Origin ids
// keep a bus from re-consuming its own publications.
type natsBridge struct {
	nc      *natsgo.Conn
	subject string
}

func (b *natsBridge) Forward(ev bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode bus event: %w", err)
	}
	return b.nc.Publish(b.subject, data)
}

// AttachBus connects the bus to the subject and returns a detach func that
// unsubscribes and releases the connection.
func AttachBus(b *bus.Bus, connect Connector, opts BridgeOptions) (func(), error) {
	if opts.Subject == "" {
		opts.Subject = defaultSubject
	}

	nc, closeCon, err := connect()
	if err != nil {
		return nil, err
	}

	br := &natsBridge{nc: nc, subject: opts.Subject}

	sub, err := nc.Subscribe(opts.Subject, func(msg *natsgo.Msg) {
		var ev bus.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		b.Inject(ev, br)
	})
	if err != nil {
		closeCon()
		return nil, err
	}

	b.AttachBridge(br)

	detach := func() {
		b.DetachBridge(br)
		_ = sub.Unsubscribe()
		closeCon()
	}
	return detach, nil
}
