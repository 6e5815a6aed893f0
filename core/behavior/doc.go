// Package behavior makes actor definitions transferable across process
// boundaries.
//
// Arbitrary code cannot cross a process boundary, so non-local placements
// rely on pre-registered named factories: both sides register the same
// behaviors in a [Registry], and only a versioned [Descriptor] (name,
// version, mixin capability names, topics, resource names) travels on the
// wire. The receiving process rebuilds the definition from its own registry;
// an unknown name or version fails the creation handshake.
//
// Mixins replace inheritance: a definition lists named behaviors whose
// handlers are composed in order underneath its own, with later entries and
// finally the definition itself winning on topic collisions.
//
// The package also hosts the marshalling registry applied to every value
// crossing a boundary: a [Marshaller] matching a positional argument replaces
// it with a tagged wire form, and the paired unmarshaller reconstructs a
// usable stand-in on receipt.
package behavior
