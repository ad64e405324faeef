package session

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"slices"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/changelog"
	"github.com/syssam/ogm/cypher"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/mapping"
	"github.com/syssam/ogm/metadata"
	"github.com/syssam/ogm/privacy"
	"github.com/syssam/ogm/transaction"
)

// Default traversal depths. A negative depth is unbounded.
const (
	DefaultLoadDepth = 1
	DefaultSaveDepth = -1
)

// Session is one unit of work: a mapping context and the transactions
// committing into it. A Session is not safe for concurrent use; open one
// per goroutine or request.
//
// Every operation takes the transaction to run in. A nil transaction runs
// the operation in its own auto-commit transaction.
type Session struct {
	factory *Factory
	ctx     *mapping.Context
	manager *transaction.Manager
	saver   *mapping.GraphMapper
	loader  *mapping.EntityMapper
}

// NewSession opens a session with an empty mapping context.
func (f *Factory) NewSession() *Session {
	ctx := mapping.NewContext()
	s := &Session{
		factory: f,
		ctx:     ctx,
		saver:   mapping.NewGraphMapper(f.registry, f.access, ctx, f.logger),
		loader:  mapping.NewEntityMapper(f.registry, f.access, ctx, f.logger),
	}
	s.manager = transaction.NewManager(f.driver, ctx,
		transaction.WithLogger(f.logger),
		transaction.WithRollbackHooks(transaction.AfterRollback(s.resetIdentities)),
	)
	return s
}

// resetIdentities marks the entities created in a rolled back transaction
// as unsaved again.
func (s *Session) resetIdentities(_ context.Context, tx *transaction.Transaction) error {
	var errs []error
	for _, log := range tx.Logs() {
		errs = append(errs, s.saver.ResetIdentities(log))
	}
	return ogm.NewAggregateError(errs...)
}

// Context returns the mapping context of the session.
func (s *Session) Context() *mapping.Context { return s.ctx }

// BeginTransaction opens an explicit transaction. Only one can be open per
// session at a time.
func (s *Session) BeginTransaction(ctx context.Context) (*transaction.Transaction, error) {
	return s.manager.Begin(ctx, dialect.TxOptions{})
}

// BeginReadOnlyTransaction opens an explicit read-only transaction.
func (s *Session) BeginReadOnlyTransaction(ctx context.Context) (*transaction.Transaction, error) {
	return s.manager.Begin(ctx, dialect.TxOptions{ReadOnly: true})
}

// Transaction returns the open explicit transaction, if any.
func (s *Session) Transaction() (*transaction.Transaction, bool) {
	return s.manager.Current()
}

// Clear empties the mapping context. Entities loaded before are detached:
// saving them again compares against nothing and rewrites them.
func (s *Session) Clear() {
	s.ctx.Clear()
}

// authorize evaluates the factory policy, if any, for r.
func (s *Session) authorize(ctx context.Context, r privacy.Request) error {
	if s.factory.policy == nil {
		return nil
	}
	if err := s.factory.policy.Eval(ctx, r); err != nil {
		s.factory.logger.DebugContext(ctx, "operation denied", "op", r.Op, "error", err)
		return err
	}
	return nil
}

// within runs fn in tx, or in an auto-commit transaction when tx is nil.
func (s *Session) within(ctx context.Context, tx *transaction.Transaction, readOnly bool, fn func(*transaction.Transaction) error) (err error) {
	if tx != nil {
		return fn(tx)
	}
	auto, err := s.manager.Begin(ctx, dialect.TxOptions{AutoCommit: true, ReadOnly: readOnly})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := auto.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(auto)
}

// apply executes a change log in tx and appends it.
func (s *Session) apply(ctx context.Context, tx *transaction.Transaction, log *changelog.ChangeLog) error {
	res, err := tx.Execute(ctx, log.Compile())
	if err != nil {
		return err
	}
	if err := log.Bind(res); err != nil {
		return err
	}
	if err := s.saver.AssignIdentities(log); err != nil {
		return err
	}
	return tx.Append(ctx, log)
}

// Save writes entity and the entities reachable from it within depth hops.
// Without a depth the whole reachable graph is saved. New entities receive
// their identity once the statements ran.
func (s *Session) Save(ctx context.Context, tx *transaction.Transaction, entity any, depth ...int) error {
	d := DefaultSaveDepth
	if len(depth) > 0 {
		d = depth[0]
	}
	if err := s.authorize(ctx, privacy.Request{Op: privacy.OpSave, Class: s.describe(entity), Entity: entity}); err != nil {
		return err
	}
	return s.within(ctx, tx, false, func(tx *transaction.Transaction) error {
		log, err := s.saver.Map(entity, d, tx.View())
		if err != nil {
			return err
		}
		return s.apply(ctx, tx, log)
	})
}

// Delete removes entity and its relationships from the graph. Deleting a
// relationship entity removes the relationship. Entities that were never
// saved are ignored.
func (s *Session) Delete(ctx context.Context, tx *transaction.Transaction, entity any) error {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("session: delete needs a non-nil pointer, got %T", entity)
	}
	cd, err := s.factory.registry.DescribeType(v.Type())
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, privacy.Request{Op: privacy.OpDelete, Class: cd, Entity: entity}); err != nil {
		return err
	}
	id, ok, err := s.factory.access.Identity(cd, v)
	if err != nil || !ok {
		return err
	}
	log := changelog.New()
	if cd.IsRelationshipEntity() {
		start, end, err := s.endpoints(cd, v)
		if err != nil {
			return err
		}
		log.Record(changelog.RelationshipChanged{
			Start:          dialect.NodeKey{ID: start},
			End:            dialect.NodeKey{ID: end},
			Type:           cd.RelationshipType,
			RelationshipID: id,
		})
	} else {
		log.Record(changelog.EntityDeleted{ID: id, Entity: v, Class: cd})
	}
	return s.within(ctx, tx, false, func(tx *transaction.Transaction) error {
		return s.apply(ctx, tx, log)
	})
}

// describe returns the class of entity, or nil when it is not mapped. The
// mapper reports unmapped entities itself.
func (s *Session) describe(entity any) *metadata.ClassDescriptor {
	if entity == nil {
		return nil
	}
	cd, err := s.factory.registry.DescribeType(reflect.TypeOf(entity))
	if err != nil {
		return nil
	}
	return cd
}

// endpoints reads the node identities of a relationship entity.
func (s *Session) endpoints(cd *metadata.ClassDescriptor, v reflect.Value) (start, end int64, err error) {
	ids := make([]int64, 0, 2)
	for _, e := range []metadata.Endpoint{metadata.EndpointStart, metadata.EndpointEnd} {
		a, err := s.factory.access.EndpointReader(cd, e)
		if err != nil {
			return 0, 0, err
		}
		node, err := a.Value(v)
		if err != nil {
			return 0, 0, err
		}
		if node.Kind() == reflect.Pointer && node.IsNil() {
			return 0, 0, fmt.Errorf("session: %s has no %s node", cd.Name, a.Name())
		}
		ncd, err := s.factory.registry.DescribeType(node.Type())
		if err != nil {
			return 0, 0, err
		}
		id, ok, err := s.factory.access.Identity(ncd, node)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			return 0, 0, fmt.Errorf("session: %s node of %s was never saved", a.Name(), cd.Name)
		}
		ids = append(ids, id)
	}
	return ids[0], ids[1], nil
}

// Purge deletes every node and relationship of the graph.
func (s *Session) Purge(ctx context.Context, tx *transaction.Transaction) error {
	if err := s.authorize(ctx, privacy.Request{Op: privacy.OpPurge}); err != nil {
		return err
	}
	log := changelog.New()
	log.Record(changelog.Purged{})
	return s.within(ctx, tx, false, func(tx *transaction.Transaction) error {
		return s.apply(ctx, tx, log)
	})
}

// Result is the outcome of a Cypher statement run by Query or Execute.
type Result struct {
	Columns []string
	Rows    [][]any
	// Entities are the mapped entities of the returned nodes, in the order
	// the nodes were returned.
	Entities []any
}

var writeClause = regexp.MustCompile(`(?i)\b(CREATE|MERGE|SET|DELETE|REMOVE)\b`)

// Query runs a read-only Cypher statement and maps the nodes it returns.
// Statements containing a write clause fail with ogm.ErrReadOnlyQuery.
func (s *Session) Query(ctx context.Context, tx *transaction.Transaction, query string, params map[string]any) (*Result, error) {
	if writeClause.MatchString(query) {
		return nil, fmt.Errorf("%w: %q", ogm.ErrReadOnlyQuery, query)
	}
	if err := s.authorize(ctx, privacy.Request{Op: privacy.OpQuery, Cypher: query}); err != nil {
		return nil, err
	}
	return s.run(ctx, tx, true, cypher.Raw(query, params))
}

// Execute runs a Cypher statement, which may write, and maps the nodes it
// returns. Writes bypass the mapping context.
func (s *Session) Execute(ctx context.Context, tx *transaction.Transaction, query string, params map[string]any) (*Result, error) {
	if err := s.authorize(ctx, privacy.Request{Op: privacy.OpExecute, Cypher: query}); err != nil {
		return nil, err
	}
	return s.run(ctx, tx, false, cypher.Raw(query, params))
}

func (s *Session) run(ctx context.Context, tx *transaction.Transaction, readOnly bool, stmt dialect.Statement) (*Result, error) {
	var out *Result
	err := s.within(ctx, tx, readOnly, func(tx *transaction.Transaction) error {
		res, err := s.fetch(ctx, tx, stmt)
		if err != nil {
			return err
		}
		ids := make([]int64, len(res.Graph.Nodes))
		for i, n := range res.Graph.Nodes {
			ids[i] = n.ID
		}
		out = &Result{Columns: res.Columns, Rows: res.Rows, Entities: s.loader.Entities(ids)}
		return nil
	})
	return out, err
}

// fetch runs one statement and hydrates the graph it returns.
func (s *Session) fetch(ctx context.Context, tx *transaction.Transaction, stmt dialect.Statement) (dialect.Result, error) {
	res, err := tx.Execute(ctx, []dialect.Statement{stmt})
	if err != nil {
		return dialect.Result{}, err
	}
	if len(res) != 1 {
		return dialect.Result{}, fmt.Errorf("session: %d results for one statement", len(res))
	}
	if err := s.loader.Map(res[0].Graph); err != nil {
		return dialect.Result{}, err
	}
	return res[0], nil
}

// roots returns the distinct values of the id column, in row order.
func roots(res dialect.Result) []int64 {
	col := slices.Index(res.Columns, "id")
	if col < 0 {
		return nil
	}
	var ids []int64
	seen := make(map[int64]bool, len(res.Rows))
	for _, row := range res.Rows {
		if col >= len(row) {
			continue
		}
		id, ok := toInt64(row[col])
		if ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), v == float64(int64(v))
	}
	return 0, false
}
