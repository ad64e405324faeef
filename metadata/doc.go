// Package metadata discovers entity classes and builds the immutable class
// index used by the rest of the mapper.
//
// Classes are found through a Source. The Catalog implementation serves Go
// types registered by the application; each type's exported fields and its
// pointer method set are classified into identity, property, relationship
// and transient members from their `ogm` struct tags, method annotations and
// declared types. Registration validates every class before the index is
// published, so mapping errors surface at startup instead of on first save.
package metadata
