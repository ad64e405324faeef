package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/ogm"
)

var (
	nodeEntityType         = reflect.TypeFor[ogm.NodeEntity]()
	relationshipEntityType = reflect.TypeFor[ogm.RelationshipEntity]()
)

// Registry builds and serves the class index. Register populates it once;
// afterwards every lookup is a read of an immutable map and may be called
// from any goroutine.
type Registry struct {
	source     Source
	logger     *slog.Logger
	converters map[string]Converter
	limit      int
	index      atomic.Pointer[index]
}

type index struct {
	byName  map[string]*ClassDescriptor
	byType  map[reflect.Type]*ClassDescriptor
	ordered []*ClassDescriptor
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithConverter registers a named converter usable as `convert=name`.
func WithConverter(name string, c Converter) Option {
	return func(r *Registry) {
		r.converters[name] = c
	}
}

// WithConcurrency bounds the number of classes described in parallel.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		r.limit = n
	}
}

// NewRegistry returns an empty registry reading classes from source.
func NewRegistry(source Source, opts ...Option) *Registry {
	r := &Registry{
		source:     source,
		logger:     slog.Default(),
		converters: builtinConverters(),
		limit:      runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register discovers every class under the scan roots, classifies its
// members, validates the result and publishes the index. It fails with a
// *ogm.ScanError when a root cannot be read, and with validation errors
// naming each offending class. A registry can be populated only once.
func (r *Registry) Register(ctx context.Context, roots ...string) error {
	if r.index.Load() != nil {
		return errors.New("metadata: registry already populated")
	}
	if len(roots) == 0 {
		return ogm.NewScanError("", errors.New("no scan roots"))
	}
	names, err := r.scan(ctx, roots)
	if err != nil {
		return err
	}
	classes, err := r.describeAll(ctx, names)
	if err != nil {
		return err
	}
	idx := newIndex(classes)
	idx.resolve()
	var errs []error
	for _, cd := range idx.ordered {
		res := Validate(cd, idx.byType)
		for _, w := range res.Warnings {
			r.logger.Warn("class metadata warning", "class", cd.Name, "member", w.Member, "warning", w.Message)
		}
		if err := res.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ogm.NewAggregateError(errs...); err != nil {
		return err
	}
	if !r.index.CompareAndSwap(nil, idx) {
		return errors.New("metadata: registry already populated")
	}
	r.logger.Debug("metadata registered", "roots", roots, "classes", len(idx.ordered))
	return nil
}

// scan lists the classes of every root concurrently.
func (r *Registry) scan(ctx context.Context, roots []string) ([]string, error) {
	found := make([][]string, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return ogm.NewScanError(root, err)
			}
			names, err := r.source.Classes(root)
			if err != nil {
				return ogm.NewScanError(root, err)
			}
			found[i] = names
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var names []string
	for _, list := range found {
		names = append(names, list...)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func (r *Registry) describeAll(ctx context.Context, names []string) ([]*ClassDescriptor, error) {
	classes := make([]*ClassDescriptor, len(names))
	g, ctx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := r.source.Members(name)
			if err != nil {
				return ogm.NewScanError(name, err)
			}
			cd, err := r.build(raw)
			if err != nil {
				return err
			}
			classes[i] = cd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return classes, nil
}

// build classifies the raw members of one class.
func (r *Registry) build(raw *RawClass) (*ClassDescriptor, error) {
	cd := &ClassDescriptor{Name: raw.Name, Type: raw.Type}
	label := raw.Type.Name()
	fieldNames := make(map[string]bool)
	for _, f := range raw.Fields {
		fieldNames[strings.ToLower(f.Name)] = true
	}
	for _, f := range raw.Fields {
		if f.Anonymous {
			if len(f.Index) > 1 {
				continue
			}
			a, err := ParseAnnotations(f.Tag)
			if err != nil {
				return nil, fmt.Errorf("metadata: %s.%s: %w", raw.Name, f.Name, err)
			}
			switch {
			case f.Type == nodeEntityType:
				if a.Label != "" {
					label = a.Label
				}
			case f.Type == relationshipEntityType:
				cd.Kind = KindRelationship
				cd.RelationshipType = a.Type
			case f.Type.Kind() == reflect.Struct:
				cd.Embeds = append(cd.Embeds, QualifiedName(f.Type))
			}
			continue
		}
		if !f.Exported || f.Indirect {
			continue
		}
		a, err := ParseAnnotations(f.Tag)
		if err != nil {
			return nil, fmt.Errorf("metadata: %s.%s: %w", raw.Name, f.Name, err)
		}
		fd := &FieldDescriptor{Index: f.Index}
		fd.Name, fd.Key, fd.Annotations = f.Name, f.Name, a
		if err := r.classify(&fd.Member, f.Type); err != nil {
			return nil, fmt.Errorf("metadata: %s.%s: %w", raw.Name, f.Name, err)
		}
		cd.Fields = append(cd.Fields, fd)
	}

	setters := make(map[string]bool)
	for _, m := range raw.Methods {
		if key, kind, _ := memberKey(m.Name); kind == Setter {
			setters[key] = true
		}
	}
	for _, m := range raw.Methods {
		key, kind, _ := memberKey(m.Name)
		a, err := ParseAnnotations(m.Tag)
		if err != nil {
			return nil, fmt.Errorf("metadata: %s.%s: %w", raw.Name, m.Name, err)
		}
		md := &MethodDescriptor{Kind: kind}
		md.Name, md.Key, md.Annotations = m.Name, key, a
		var t reflect.Type
		switch kind {
		case Setter:
			if len(m.Params) != 1 || len(m.Results) > 1 || (len(m.Results) == 1 && m.Results[0] != errorType) {
				continue
			}
			t, md.ReturnsError = m.Params[0], len(m.Results) == 1
		case Getter:
			if len(m.Params) != 0 || len(m.Results) != 1 || m.Results[0] == errorType {
				continue
			}
			if a.Empty() && !setters[key] && !fieldNames[strings.ToLower(key)] {
				continue
			}
			t = m.Results[0]
		}
		if err := r.classify(&md.Member, t); err != nil {
			return nil, fmt.Errorf("metadata: %s.%s: %w", raw.Name, m.Name, err)
		}
		cd.Methods = append(cd.Methods, md)
	}
	promoteIdentity(cd)
	if cd.Kind == KindRelationship {
		if cd.RelationshipType == "" {
			cd.RelationshipType = RelationshipTypeName(raw.Type.Name())
		}
	} else {
		cd.Labels = []string{label}
	}
	return cd, nil
}

// classify assigns the role of a member from its annotations, falling back
// to its declared type.
func (r *Registry) classify(m *Member, t reflect.Type) error {
	a := m.Annotations
	m.Type = SignatureOf(t)
	switch {
	case a.Transient:
		if a != (AnnotationSet{Transient: true}) {
			return errors.New("transient member declares other annotations")
		}
		m.Role = RoleTransient
	case a.Identity:
		m.Role = RoleIdentity
	case a.Start || a.End:
		m.Role = RoleRelationship
		if a.Start {
			m.Endpoint = EndpointStart
		}
		if a.End {
			m.Endpoint = EndpointEnd
		}
	case a.Relationship:
		m.Role = RoleRelationship
	case a.Property || a.Converter != "":
		m.Role = RoleScalar
	case simple(t):
		m.Role = RoleScalar
	case entityLike(t):
		m.Role = RoleRelationship
	default:
		m.Role = RoleTransient
	}
	switch m.Role {
	case RoleScalar:
		m.Property = a.PropertyName
		if m.Property == "" {
			m.Property = PropertyName(m.Key)
		}
		if a.Converter != "" {
			// An unknown name leaves Converter nil; Validate reports it.
			m.Converter = r.converters[a.Converter]
		} else {
			m.Converter = inferConverter(m.Type.Elem, r.converters)
		}
	case RoleRelationship:
		m.Relationship = a.RelationshipType
		if m.Relationship == "" && m.Endpoint == EndpointNone {
			m.Relationship = RelationshipTypeName(m.Key)
		}
		if a.HasDirection {
			m.Direction = a.Direction
		}
	}
	return nil
}

// promoteIdentity applies the naming convention for identities: without an
// annotated identity, an integer member named ID or Id is the identity.
func promoteIdentity(cd *ClassDescriptor) {
	conventional := func(m *Member) bool {
		return m.Annotations.Empty() && (m.Key == "ID" || m.Key == "Id") && m.Type.Integer()
	}
	annotated := false
	for _, f := range cd.Fields {
		annotated = annotated || f.Role == RoleIdentity
	}
	if !annotated {
		for _, f := range cd.Fields {
			if conventional(&f.Member) {
				f.Role, f.Property, f.Converter = RoleIdentity, "", nil
				break
			}
		}
	}
	for _, kind := range []MethodKind{Getter, Setter} {
		if len(cd.MethodsWith(RoleIdentity, kind)) > 0 {
			continue
		}
		for _, m := range cd.Methods {
			if m.Kind == kind && conventional(&m.Member) {
				m.Role, m.Property, m.Converter = RoleIdentity, "", nil
				break
			}
		}
	}
}

func newIndex(classes []*ClassDescriptor) *index {
	idx := &index{
		byName:  make(map[string]*ClassDescriptor, len(classes)),
		byType:  make(map[reflect.Type]*ClassDescriptor, len(classes)),
		ordered: classes,
	}
	for _, cd := range classes {
		idx.byName[cd.Name] = cd
		idx.byType[cd.Type] = cd
	}
	return idx
}

// resolve links classes to each other once all of them are known: embedded
// entity labels, relationship targets and relationship entity types.
func (idx *index) resolve() {
	var labels func(cd *ClassDescriptor, seen map[string]bool) []string
	labels = func(cd *ClassDescriptor, seen map[string]bool) []string {
		var out []string
		for _, name := range cd.Embeds {
			parent, ok := idx.byName[name]
			if !ok || seen[name] || parent.IsRelationshipEntity() {
				continue
			}
			seen[name] = true
			out = append(out, parent.Label())
			out = append(out, labels(parent, seen)...)
		}
		return out
	}
	for _, cd := range idx.ordered {
		embeds := cd.Embeds[:0:0]
		for _, name := range cd.Embeds {
			if _, ok := idx.byName[name]; ok {
				embeds = append(embeds, name)
			}
		}
		cd.Embeds = embeds
		if !cd.IsRelationshipEntity() {
			for _, l := range labels(cd, map[string]bool{cd.Name: true}) {
				if !slices.Contains(cd.Labels, l) {
					cd.Labels = append(cd.Labels, l)
				}
			}
		}
		link := func(m *Member) {
			if m.Role != RoleRelationship {
				return
			}
			target, ok := idx.byType[m.Type.Elem]
			if !ok {
				return
			}
			m.Target = target.Name
			switch {
			case m.Endpoint != EndpointNone:
				m.Relationship = cd.RelationshipType
			case target.IsRelationshipEntity() && m.Annotations.RelationshipType == "":
				m.Relationship = target.RelationshipType
			}
		}
		for _, f := range cd.Fields {
			link(&f.Member)
		}
		for _, m := range cd.Methods {
			link(&m.Member)
		}
	}
}

// Describe returns the descriptor of a qualified class name.
func (r *Registry) Describe(name string) (*ClassDescriptor, error) {
	idx := r.index.Load()
	if idx != nil {
		if cd, ok := idx.byName[name]; ok {
			return cd, nil
		}
	}
	return nil, ogm.NewUnknownTypeError(name)
}

// DescribeType returns the descriptor of a struct type or pointer to one.
func (r *Registry) DescribeType(t reflect.Type) (*ClassDescriptor, error) {
	if t == nil {
		return nil, ogm.NewUnknownTypeError("<nil>")
	}
	t = indirect(t)
	idx := r.index.Load()
	if idx != nil {
		if cd, ok := idx.byType[t]; ok {
			return cd, nil
		}
	}
	return nil, ogm.NewUnknownTypeError(QualifiedName(t))
}

// DescribeValue returns the descriptor of an entity value.
func (r *Registry) DescribeValue(v any) (*ClassDescriptor, error) {
	return r.DescribeType(reflect.TypeOf(v))
}

// Classes returns every registered class ordered by name.
func (r *Registry) Classes() []*ClassDescriptor {
	idx := r.index.Load()
	if idx == nil {
		return nil
	}
	return slices.Clone(idx.ordered)
}

// ForLabels returns the most specific node class whose labels are all
// contained in the given label set.
func (r *Registry) ForLabels(labels []string) (*ClassDescriptor, bool) {
	idx := r.index.Load()
	if idx == nil {
		return nil, false
	}
	var best *ClassDescriptor
	for _, cd := range idx.ordered {
		if cd.IsRelationshipEntity() || len(cd.Labels) == 0 {
			continue
		}
		if !containsAll(labels, cd.Labels) {
			continue
		}
		if best == nil || len(cd.Labels) > len(best.Labels) {
			best = cd
		}
	}
	return best, best != nil
}

// ForRelationshipType returns the relationship entity class for a type.
func (r *Registry) ForRelationshipType(typ string) (*ClassDescriptor, bool) {
	idx := r.index.Load()
	if idx == nil {
		return nil, false
	}
	for _, cd := range idx.ordered {
		if cd.IsRelationshipEntity() && cd.RelationshipType == typ {
			return cd, true
		}
	}
	return nil, false
}

// Converter returns a registered converter by name.
func (r *Registry) Converter(name string) (Converter, bool) {
	c, ok := r.converters[name]
	return c, ok
}

func containsAll(set, sub []string) bool {
	for _, s := range sub {
		if !slices.Contains(set, s) {
			return false
		}
	}
	return true
}
