package ogm

import (
	"fmt"
	"strings"
)

// Direction is the orientation of a relationship relative to the entity that
// declares it.
type Direction uint8

// Relationship directions.
const (
	Outgoing Direction = iota
	Incoming
	Undirected
)

// String returns the canonical upper-case name of the direction.
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "OUTGOING"
	case Incoming:
		return "INCOMING"
	case Undirected:
		return "UNDIRECTED"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Reverse returns the direction seen from the other end of the relationship.
func (d Direction) Reverse() Direction {
	switch d {
	case Outgoing:
		return Incoming
	case Incoming:
		return Outgoing
	default:
		return d
	}
}

// Matches reports whether a member declared with direction d can hold a
// relationship traversed in direction o.
func (d Direction) Matches(o Direction) bool {
	return d == o || d == Undirected || o == Undirected
}

// ParseDirection parses a direction name. It accepts the canonical names and
// the short forms "out", "in" and "both", case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OUTGOING", "OUT":
		return Outgoing, nil
	case "INCOMING", "IN":
		return Incoming, nil
	case "UNDIRECTED", "BOTH":
		return Undirected, nil
	default:
		return Outgoing, fmt.Errorf("ogm: unknown relationship direction %q", s)
	}
}
