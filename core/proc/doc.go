// Package proc implements the shared transport machinery behind the forked,
// threaded and remote actor placements.
//
// All three placements speak the same protocol over a framed duplex channel;
// they differ only in how the channel is opened (an [Opener]):
//
//   - forked: pipes inherited by a re-executed child process
//   - threaded: an in-process [net.Pipe] to an endpoint goroutine, keeping
//     the full serialization boundary
//   - remote: a TCP connection to a listener on another machine
//
// The parent side is a [Proxy] implementing the actor reference contract; the
// child side is an endpoint (see [Serve]) hosting the one real actor engine.
// Creation is a handshake: the proxy sends create-actor and accepts no
// application traffic until the endpoint acknowledges with actor-created.
// Every request carries a fresh correlation id tracked in a pending-response
// table; the table is rejected wholesale when the channel closes unexpectedly.
// With OnCrash "respawn" the proxy re-runs the handshake under the same
// identity and swaps its connection transparently; otherwise it fails
// permanently. In-flight messages during a crash are lost, never redelivered.
package proc
