package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/changelog"
	"github.com/syssam/ogm/cypher"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/metadata"
	"github.com/syssam/ogm/privacy"
	"github.com/syssam/ogm/transaction"
)

// class returns the node class of T once op on it is authorized.
func class[T any](ctx context.Context, s *Session, op privacy.Op) (*metadata.ClassDescriptor, error) {
	cd, err := s.factory.registry.DescribeType(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	if cd.IsRelationshipEntity() {
		return nil, fmt.Errorf("session: %s is a relationship entity", cd.Name)
	}
	if err := s.authorize(ctx, privacy.Request{Op: op, Class: cd}); err != nil {
		return nil, err
	}
	return cd, nil
}

func loadDepth(depth []int) int {
	if len(depth) > 0 {
		return depth[0]
	}
	return DefaultLoadDepth
}

// collect returns the context instances of ids that are a *T.
func collect[T any](s *Session, ids []int64) []*T {
	out := make([]*T, 0, len(ids))
	for _, e := range s.loader.Entities(ids) {
		if v, ok := e.(*T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Load loads the entity of type T with the given identity, and the entities
// within depth hops of it (1 without a depth). An entity already in the
// session is returned as is. A missing node fails with ogm.ErrNotFound.
func Load[T any](ctx context.Context, s *Session, tx *transaction.Transaction, id int64, depth ...int) (*T, error) {
	cd, err := class[T](ctx, s, privacy.OpLoad)
	if err != nil {
		return nil, err
	}
	var out *T
	err = s.within(ctx, tx, true, func(tx *transaction.Transaction) error {
		if _, err := s.fetch(ctx, tx, cypher.MatchIDs([]int64{id}, loadDepth(depth))); err != nil {
			return err
		}
		if got := collect[T](s, []int64{id}); len(got) == 1 {
			out = got[0]
			return nil
		}
		return ogm.NewNotFoundError(cd.Label(), id)
	})
	return out, err
}

// LoadAll loads the entities of type T with the given identities, in the
// requested order. Missing identities are skipped.
func LoadAll[T any](ctx context.Context, s *Session, tx *transaction.Transaction, ids []int64, depth ...int) ([]*T, error) {
	if _, err := class[T](ctx, s, privacy.OpLoad); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*T
	err := s.within(ctx, tx, true, func(tx *transaction.Transaction) error {
		if _, err := s.fetch(ctx, tx, cypher.MatchIDs(ids, loadDepth(depth))); err != nil {
			return err
		}
		out = collect[T](s, ids)
		return nil
	})
	return out, err
}

// LoadByType loads the entities of type T, in the order the options
// request. Without options every entity is loaded with the default depth.
func LoadByType[T any](ctx context.Context, s *Session, tx *transaction.Transaction, opts ...LoadOption) ([]*T, error) {
	cd, err := class[T](ctx, s, privacy.OpLoad)
	if err != nil {
		return nil, err
	}
	o := &loadOptions{depth: DefaultLoadDepth}
	for _, opt := range opts {
		opt(o)
	}
	stmt, err := o.match(cd)
	if err != nil {
		return nil, err
	}
	return loadMatching[T](ctx, s, tx, stmt)
}

// LoadByProperty loads the entities of type T whose graph property name
// equals value.
func LoadByProperty[T any](ctx context.Context, s *Session, tx *transaction.Transaction, name string, value any, depth ...int) ([]*T, error) {
	cd, err := class[T](ctx, s, privacy.OpLoad)
	if err != nil {
		return nil, err
	}
	return loadMatching[T](ctx, s, tx, cypher.MatchProperty(cd.Label(), name, value, loadDepth(depth)))
}

func loadMatching[T any](ctx context.Context, s *Session, tx *transaction.Transaction, stmt dialect.Statement) ([]*T, error) {
	var out []*T
	err := s.within(ctx, tx, true, func(tx *transaction.Transaction) error {
		res, err := s.fetch(ctx, tx, stmt)
		if err != nil {
			return err
		}
		out = collect[T](s, roots(res))
		return nil
	})
	return out, err
}

// Count returns the number of nodes of type T matching every filter.
func Count[T any](ctx context.Context, s *Session, tx *transaction.Transaction, filters ...Filter) (int64, error) {
	cd, err := class[T](ctx, s, privacy.OpCount)
	if err != nil {
		return 0, err
	}
	filters, err = resolveFilters(cd, filters)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.within(ctx, tx, true, func(tx *transaction.Transaction) error {
		res, err := tx.Execute(ctx, []dialect.Statement{cypher.CountLabel(cd.Label(), filters...)})
		if err != nil {
			return err
		}
		if len(res) != 1 || len(res[0].Rows) != 1 || len(res[0].Rows[0]) != 1 {
			return fmt.Errorf("session: unexpected count result for %s", cd.Label())
		}
		var ok bool
		if n, ok = toInt64(res[0].Rows[0][0]); !ok {
			return fmt.Errorf("session: unexpected count value %v", res[0].Rows[0][0])
		}
		return nil
	})
	return n, err
}

// DeleteAll deletes every node of type T and its relationships, and drops
// the instances of T from the session.
func DeleteAll[T any](ctx context.Context, s *Session, tx *transaction.Transaction) error {
	cd, err := class[T](ctx, s, privacy.OpDeleteAll)
	if err != nil {
		return err
	}
	log := changelog.New()
	log.Record(changelog.LabelDeleted{Label: cd.Label(), Class: cd})
	return s.within(ctx, tx, false, func(tx *transaction.Transaction) error {
		return s.apply(ctx, tx, log)
	})
}
