// Package bus provides the process-wide publish/subscribe channel. Every
// forked, threaded and remote transport transparently bridges its events, so
// a subscriber sees the same traffic regardless of which process published.
package bus

import (
	"log/slog"
	"regexp"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Event is one bus publication. Data must survive the wire codec when the
// bus is bridged across process boundaries.
type Event struct {
	Topic  string `json:"topic"`
	Data   any    `json:"data,omitempty"`
	Origin string `json:"origin"`
}

// Bridge carries events to a neighboring bus instance (another process, a
// worker endpoint, or a message broker).
type Bridge interface {
	// Forward delivers the event to the far side. Errors are logged by the
	// bus, not raised to publishers.
	Forward(ev Event) error
}

type subscription struct {
	re *regexp.Regexp
	ch chan Event
}

// Bus is one process-local pub/sub instance identified by a unique origin id.
// Bridged buses form a tree; loop suppression relies on never forwarding an
// event back to the bridge it arrived on.
type Bus struct {
	origin  string
	log     *slog.Logger
	bufSize int

	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	bridges map[Bridge]struct{}
	closed  bool
}

type Options struct {
	Log *slog.Logger
	// BufferSize is the per-subscriber channel capacity. Defaults to 64.
	BufferSize int
}

func New(opts Options) *Bus {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		origin:  gonanoid.Must(),
		log:     log.With(slog.String("component", "bus")),
		bufSize: bufSize,
		subs:    make(map[*subscription]struct{}),
		bridges: make(map[Bridge]struct{}),
	}
}

// Origin returns this bus instance's unique id, stamped on locally
// published events.
func (b *Bus) Origin() string { return b.origin }

// Subscribe registers for all topics matching the anchored regexp pattern.
// The returned cancel func unsubscribes and closes the channel.
func (b *Bus) Subscribe(pattern string) (<-chan Event, func(), error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, nil, err
	}

	sub := &subscription{re: re, ch: make(chan Event, b.bufSize)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

// Publish emits an event originating from this process: local subscribers
// receive it and every attached bridge forwards it.
func (b *Bus) Publish(topic string, data any) {
	b.dispatch(Event{Topic: topic, Data: data, Origin: b.origin}, nil)
}

// Inject delivers an event that arrived over a bridge. It reaches local
// subscribers and every bridge except the one it came from.
func (b *Bus) Inject(ev Event, from Bridge) {
	if ev.Origin == b.origin {
		return
	}
	b.dispatch(ev, from)
}

// AttachBridge starts forwarding local publications over the bridge.
func (b *Bus) AttachBridge(br Bridge) {
	b.mu.Lock()
	b.bridges[br] = struct{}{}
	b.mu.Unlock()
}

// DetachBridge stops forwarding over the bridge.
func (b *Bus) DetachBridge(br Bridge) {
	b.mu.Lock()
	delete(b.bridges, br)
	b.mu.Unlock()
}

func (b *Bus) dispatch(ev Event, from Bridge) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}

	// subscriber sends never block, so they stay under the read lock;
	// cancel and Close take the write lock before closing a channel
	for s := range b.subs {
		if !s.re.MatchString(ev.Topic) {
			continue
		}
		// slow subscribers drop events rather than stall publishers
		select {
		case s.ch <- ev:
		default:
			b.log.Warn("dropping bus event", slog.String("topic", ev.Topic))
		}
	}

	bridges := make([]Bridge, 0, len(b.bridges))
	for br := range b.bridges {
		if br != from {
			bridges = append(bridges, br)
		}
	}
	b.mu.RUnlock()

	for _, br := range bridges {
		if err := br.Forward(ev); err != nil {
			b.log.Error("bus bridge forward failed",
				slog.String("topic", ev.Topic),
				slog.Any("error", err),
			)
		}
	}
}

// Close drops all subscribers and bridges.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
	for br := range b.bridges {
		delete(b.bridges, br)
	}
}
