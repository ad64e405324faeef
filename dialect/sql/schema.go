package sql

import (
	"context"
	"fmt"

	"github.com/syssam/ogm/dialect"
)

// Table names of the graph schema.
const (
	NodesTable         = "ogm_nodes"
	RelationshipsTable = "ogm_relationships"
)

// ddl returns the statements creating the graph schema. Labels are stored
// as ":A:B:" and properties as MessagePack documents.
func ddl(name string) ([]string, error) {
	switch name {
	case dialect.SQLite:
		return []string{
			`CREATE TABLE IF NOT EXISTS ogm_nodes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				labels TEXT NOT NULL,
				props BLOB
			)`,
			`CREATE TABLE IF NOT EXISTS ogm_relationships (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				type TEXT NOT NULL,
				start_id INTEGER NOT NULL REFERENCES ogm_nodes(id),
				end_id INTEGER NOT NULL REFERENCES ogm_nodes(id),
				props BLOB
			)`,
			`CREATE INDEX IF NOT EXISTS ogm_relationships_start ON ogm_relationships(start_id)`,
			`CREATE INDEX IF NOT EXISTS ogm_relationships_end ON ogm_relationships(end_id)`,
		}, nil
	case dialect.Postgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS ogm_nodes (
				id BIGSERIAL PRIMARY KEY,
				labels TEXT NOT NULL,
				props BYTEA
			)`,
			`CREATE TABLE IF NOT EXISTS ogm_relationships (
				id BIGSERIAL PRIMARY KEY,
				type TEXT NOT NULL,
				start_id BIGINT NOT NULL REFERENCES ogm_nodes(id),
				end_id BIGINT NOT NULL REFERENCES ogm_nodes(id),
				props BYTEA
			)`,
			`CREATE INDEX IF NOT EXISTS ogm_relationships_start ON ogm_relationships(start_id)`,
			`CREATE INDEX IF NOT EXISTS ogm_relationships_end ON ogm_relationships(end_id)`,
		}, nil
	case dialect.MySQL:
		return []string{
			"CREATE TABLE IF NOT EXISTS ogm_nodes (" +
				"id BIGINT AUTO_INCREMENT PRIMARY KEY, " +
				"labels VARCHAR(1024) NOT NULL, " +
				"props LONGBLOB)",
			"CREATE TABLE IF NOT EXISTS ogm_relationships (" +
				"id BIGINT AUTO_INCREMENT PRIMARY KEY, " +
				"type VARCHAR(255) NOT NULL, " +
				"start_id BIGINT NOT NULL, " +
				"end_id BIGINT NOT NULL, " +
				"props LONGBLOB, " +
				"INDEX ogm_relationships_start (start_id), " +
				"INDEX ogm_relationships_end (end_id), " +
				"FOREIGN KEY (start_id) REFERENCES ogm_nodes(id), " +
				"FOREIGN KEY (end_id) REFERENCES ogm_nodes(id))",
		}, nil
	}
	return nil, fmt.Errorf("dialect/sql: unsupported dialect %q", name)
}

// Migrate creates the graph schema if it does not exist.
func (d *Driver) Migrate(ctx context.Context) error {
	stmts, err := ddl(d.Dialect())
	if err != nil {
		return err
	}
	c := Conn{d.db, d.Dialect()}
	for _, s := range stmts {
		if _, err := c.Exec(ctx, s); err != nil {
			return fmt.Errorf("dialect/sql: migrate: %w", err)
		}
	}
	return nil
}
