package mapping

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/syssam/ogm"
)

// MappedRelationship is a relationship known to a unit of work, as a
// directed edge between two graph identities. Two relationships are equal
// when their keys are equal, whatever their activity.
type MappedRelationship struct {
	StartID int64
	Type    string
	EndID   int64
	Active  bool
	// RelationshipID is the graph identity of the relationship, when known.
	RelationshipID int64
}

// RelationshipKey is the identity of a MappedRelationship.
type RelationshipKey struct {
	StartID int64
	Type    string
	EndID   int64
}

// Key returns the (start, type, end) triple.
func (r MappedRelationship) Key() RelationshipKey {
	return RelationshipKey{StartID: r.StartID, Type: r.Type, EndID: r.EndID}
}

// Other returns the identity at the other end from id.
func (r MappedRelationship) Other(id int64) int64 {
	if r.StartID == id {
		return r.EndID
	}
	return r.StartID
}

// Touches reports whether the relationship leaves or enters id in the
// given direction.
func (r MappedRelationship) Touches(id int64, dir ogm.Direction) bool {
	switch dir {
	case ogm.Outgoing:
		return r.StartID == id
	case ogm.Incoming:
		return r.EndID == id
	default:
		return r.StartID == id || r.EndID == id
	}
}

// String implements fmt.Stringer.
func (r MappedRelationship) String() string {
	return fmt.Sprintf("(%d)-[:%s]->(%d)", r.StartID, r.Type, r.EndID)
}

func compareRelationships(a, b MappedRelationship) int {
	return cmp.Or(
		cmp.Compare(a.StartID, b.StartID),
		cmp.Compare(a.Type, b.Type),
		cmp.Compare(a.EndID, b.EndID),
	)
}

func sortRelationships(rs []MappedRelationship) []MappedRelationship {
	slices.SortFunc(rs, compareRelationships)
	return rs
}

// RelationshipView is a read view of known relationships.
type RelationshipView interface {
	// Relationships returns the active relationships of type typ touching
	// id in direction dir, sorted.
	Relationships(id int64, typ string, dir ogm.Direction) []MappedRelationship
	// HasRelationship reports whether the relationship with key k is active.
	HasRelationship(k RelationshipKey) bool
}
