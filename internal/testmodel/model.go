// Package testmodel holds the entity types shared by the package tests.
package testmodel

import (
	"time"

	"github.com/syssam/ogm"
)

// Person is a node entity exercising most member kinds.
type Person struct {
	ogm.NodeEntity `ogm:"label=Person"`

	ID       *int64
	Name     string
	Age      int
	Born     time.Time
	Tags     []string
	Nickname string `ogm:"-"`
	Scratch  map[string]any

	Friends []*Person `ogm:"relationship=FRIEND_OF,direction=UNDIRECTED"`
	Knows   []*Person
	Manager *Person `ogm:"relationship=MANAGES,direction=INCOMING"`
	Ratings []*Rating

	note string
}

// Note returns an unmapped value.
func (p *Person) Note() string { return p.note }

// Employee extends Person and inherits its label.
type Employee struct {
	Person
	Company string `ogm:"property=company_name"`
}

// Movie is a node entity with an annotated identity.
type Movie struct {
	Key      int64  `ogm:"id"`
	Title    string `ogm:"property=title"`
	Released int16
	Ratings  []*Rating `ogm:"relationship=RATED,direction=INCOMING"`
}

// Rating is the payload of a RATED relationship.
type Rating struct {
	ogm.RelationshipEntity `ogm:"type=RATED"`

	ID     *int64
	Person *Person `ogm:"start"`
	Movie  *Movie  `ogm:"end"`
	Stars  int
}

// Director maps its films through annotated accessor methods.
type Director struct {
	ID   *int64
	Name string

	films    []*Movie
	setCalls int
}

// Films returns the directed movies.
func (d *Director) Films() []*Movie { return d.films }

// SetFilms replaces the directed movies.
func (d *Director) SetFilms(films []*Movie) {
	d.setCalls++
	d.films = films
}

// SetCalls reports how often SetFilms was called.
func (d *Director) SetCalls() int { return d.setCalls }

// MethodAnnotations implements ogm.MethodAnnotator.
func (d *Director) MethodAnnotations() map[string]string {
	return map[string]string{
		"Films":    "relationship=DIRECTED",
		"SetFilms": "relationship=DIRECTED",
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
