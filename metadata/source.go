package metadata

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/syssam/ogm"
)

// Source is the introspection collaborator the registry discovers classes
// through. Implementations must be safe for concurrent use.
type Source interface {
	// Classes returns the qualified names of the classes under a scan root.
	Classes(root string) ([]string, error)
	// Members returns the raw, ordered members of a class.
	Members(class string) (*RawClass, error)
}

// RawClass is the unclassified member list of a class.
type RawClass struct {
	Name    string
	Type    reflect.Type
	Fields  []RawField
	Methods []RawMethod
}

// RawField is a struct field as declared.
type RawField struct {
	Name      string
	Index     []int
	Type      reflect.Type
	Tag       string
	Exported  bool
	Anonymous bool
	// Indirect is set when the field is promoted through an embedded pointer.
	Indirect bool
}

// RawMethod is an exported method of the class's pointer type.
type RawMethod struct {
	Name    string
	Params  []reflect.Type
	Results []reflect.Type
	Tag     string
}

// Catalog is a Source backed by registered Go types.
//
//	catalog := metadata.NewCatalog()
//	catalog.Register(model.Person{}, (*model.Movie)(nil))
//	reg := metadata.NewRegistry(catalog)
//	err := reg.Register(ctx, "example.com/app/model")
type Catalog struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]reflect.Type)}
}

// Register adds the struct types of the given sample values. Pointers and
// reflect.Type values are accepted.
func (c *Catalog) Register(samples ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range samples {
		t, ok := s.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(s)
		}
		if t == nil {
			return fmt.Errorf("metadata: cannot register nil")
		}
		t = indirect(t)
		if t.Kind() != reflect.Struct || t.Name() == "" {
			return fmt.Errorf("metadata: %s is not a named struct type", t)
		}
		c.types[QualifiedName(t)] = t
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(samples ...any) *Catalog {
	if err := c.Register(samples...); err != nil {
		panic(err)
	}
	return c
}

// Classes implements Source. A root matches its own package and every
// package below it.
func (c *Catalog) Classes(root string) ([]string, error) {
	root = strings.TrimSuffix(root, "/...")
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for name, t := range c.types {
		pkg := t.PkgPath()
		if pkg == root || strings.HasPrefix(pkg, root+"/") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no types registered under %q", root)
	}
	slices.Sort(names)
	return names, nil
}

// Members implements Source.
func (c *Catalog) Members(class string) (*RawClass, error) {
	c.mu.RLock()
	t, ok := c.types[class]
	c.mu.RUnlock()
	if !ok {
		return nil, ogm.NewUnknownTypeError(class)
	}
	return Inspect(t)
}

// Inspect reads the raw members of struct type t.
func Inspect(t reflect.Type) (raw *RawClass, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("metadata: inspecting %s panics: %v", t, v)
			raw = nil
		}
	}()
	t = indirect(t)
	raw = &RawClass{Name: QualifiedName(t), Type: t}
	for _, f := range reflect.VisibleFields(t) {
		raw.Fields = append(raw.Fields, RawField{
			Name:      f.Name,
			Index:     f.Index,
			Type:      f.Type,
			Tag:       f.Tag.Get(ogm.TagName),
			Exported:  f.IsExported(),
			Anonymous: f.Anonymous,
			Indirect:  throughPointer(t, f.Index),
		})
	}
	tags, err := safeMethodAnnotations(t)
	if err != nil {
		return nil, err
	}
	pt := reflect.PointerTo(t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if m.Name == "MethodAnnotations" {
			continue
		}
		rm := RawMethod{Name: m.Name, Tag: tags[m.Name]}
		for j := 1; j < m.Type.NumIn(); j++ {
			rm.Params = append(rm.Params, m.Type.In(j))
		}
		for j := 0; j < m.Type.NumOut(); j++ {
			rm.Results = append(rm.Results, m.Type.Out(j))
		}
		raw.Methods = append(raw.Methods, rm)
	}
	return raw, nil
}

// safeMethodAnnotations calls MethodAnnotations with recover, since it is
// user code running during registration.
func safeMethodAnnotations(t reflect.Type) (tags map[string]string, err error) {
	a, ok := reflect.New(t).Interface().(ogm.MethodAnnotator)
	if !ok {
		return nil, nil
	}
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("metadata: %s.MethodAnnotations panics: %v", t, v)
			tags = nil
		}
	}()
	return a.MethodAnnotations(), nil
}

// QualifiedName returns the package-qualified name of a type.
func QualifiedName(t reflect.Type) string {
	t = indirect(t)
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// indirect returns the type at the end of indirection.
func indirect(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func throughPointer(t reflect.Type, index []int) bool {
	for i := 0; i < len(index)-1; i++ {
		f := t.Field(index[i])
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}
