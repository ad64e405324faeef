// Package session is the unit-of-work API of the object-graph mapper.
//
// A Factory is built once from an ogm.Config: it registers the entity
// classes under the configured scan roots and opens the transport. Each
// Session it opens owns a mapping context and a transaction manager:
//
//	f, err := session.NewFactory(ctx, cfg, catalog)
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	s := f.NewSession()
//	if err := s.Save(ctx, nil, person); err != nil {
//		return err
//	}
//	p, err := session.Load[model.Person](ctx, s, nil, *person.ID)
//
// Operations run in the transaction they are given; a nil transaction runs
// the operation in its own auto-commit transaction.
package session
