package ogm

// TagName is the struct tag key read by the metadata registry.
const TagName = "ogm"

// NodeEntity marks a struct as a node entity. Embed it to set the primary
// label explicitly:
//
//	type Person struct {
//		ogm.NodeEntity `ogm:"label=Person"`
//		ID      *int64
//		Name    string
//		Friends []*Person `ogm:"relationship=FRIEND_OF,direction=UNDIRECTED"`
//	}
//
// Registered structs without the marker are node entities labelled with
// their type name.
type NodeEntity struct{}

// RelationshipEntity marks a struct as the payload of a relationship. The
// embedded field's tag carries the relationship type, and exactly one member
// must be tagged `ogm:"start"` and one `ogm:"end"`:
//
//	type Rating struct {
//		ogm.RelationshipEntity `ogm:"type=RATED"`
//		ID    *int64
//		User  *User  `ogm:"start"`
//		Movie *Movie `ogm:"end"`
//		Stars int
//	}
type RelationshipEntity struct{}

// MethodAnnotator is implemented by entities that annotate accessor methods.
// The returned map is keyed by method name and uses the struct tag grammar:
//
//	func (p *Person) MethodAnnotations() map[string]string {
//		return map[string]string{
//			"SetFriends": "relationship=FRIEND_OF",
//			"Friends":    "relationship=FRIEND_OF",
//		}
//	}
//
// It is read once, when the class is registered.
type MethodAnnotator interface {
	MethodAnnotations() map[string]string
}
