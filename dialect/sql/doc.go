// Package sql stores the graph in a relational database through
// database/sql. Nodes and relationships live in two tables created by
// Migrate; every batch is interpreted by graphop against a Store bound to a
// database transaction.
//
//	drv, err := sql.Open("sqlite", "file:graph.db?_pragma=foreign_keys(1)")
//	if err != nil {
//		return err
//	}
//	if err := drv.Migrate(ctx); err != nil {
//		return err
//	}
//
// SQLite, PostgreSQL (lib/pq or pgx) and MySQL are supported. The
// database/sql driver must be registered by the program.
package sql
