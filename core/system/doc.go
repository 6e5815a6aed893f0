// Package system assembles the runtime: the root of the actor tree, the
// behavior registry, the resource injector, the system bus and the placement
// machinery. A System hands out Handle references; a handle keeps its
// identity for the life of the actor while the placement underneath it can
// be swapped through reconfiguration.
package system
