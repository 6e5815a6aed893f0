// Package actor provides the core actor engine and the placement-independent
// actor reference contract.
//
// An actor is an isolated, message-driven unit of behavior with private state.
// Each actor owns one ordered mailbox and processes exactly one message at a
// time; independent actors interleave freely. Callers never talk to an actor
// directly but through a [Ref], which looks identical whether the actor lives
// in the same process, a forked child process, a worker goroutine behind a
// serialization boundary, or a remote machine.
//
// # Lifecycle
//
// new -> initializing -> idle <-> processing -> destroying -> destroyed
//
// Messages sent before initialization completes fail with [ErrNotInitialized].
// Destroy never hard-cancels in-flight work: the mailbox drains fully, children
// are destroyed bottom-up, then the destroy hook runs exactly once.
//
// # Behaviors
//
// A behavior is declared as a [Definition]: a map of topic handlers plus
// optional Initialize/Destroy hooks and declared resource dependencies:
//
//	def := &actor.Definition{
//	    Name: "echo",
//	    Handlers: actor.Handlers{
//	        "echo": func(c *actor.Context, args ...any) (any, error) {
//	            return args[0], nil
//	        },
//	    },
//	}
package actor
