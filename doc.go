// Package ogm is an object-graph mapper. It maps Go structs connected by
// pointers onto a property graph of nodes, relationships and properties,
// keeping one in-memory instance per graph identity inside a unit of work and
// reconciling added or removed relationships on every save.
//
// The root package holds the shared vocabulary: entity markers, relationship
// directions, configuration and the error taxonomy. The moving parts live in
// subpackages:
//
//   - metadata: class discovery and the immutable class index
//   - entityaccess: accessor resolution for fields and methods
//   - mapping: identity map, relationship table and the object/graph mappers
//   - changelog: recorded save effects and their compilation to statements
//   - transaction: remote transaction lifecycle and commit synchronization
//   - dialect: transport contract and its implementations
//   - session: the unit-of-work API that ties the rest together
package ogm
