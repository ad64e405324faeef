// Package mapping keeps the identity map of a unit of work and translates
// between object graphs and graph changes.
//
// A Context holds one instance per graph identity and the relationships
// known between them. A GraphMapper walks an object graph and records what
// a save must write into a changelog.ChangeLog, reconciling relationships
// against a RelationshipView. An EntityMapper hydrates query results into
// the Context. Committed logs are applied with Context.Sync; uncommitted
// ones are layered over the Context with an Overlay.
package mapping
