package sql

import (
	"bytes"
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/ogm"
	"github.com/syssam/ogm/dialect"
	"github.com/syssam/ogm/dialect/graphop"
)

// Store is a graphop.Store over the graph tables, usually bound to a
// database transaction.
type Store struct {
	Conn
}

// NewStore returns a store running statements on ex.
func NewStore(name string, ex ExecQuerier) *Store {
	return &Store{Conn{ex, name}}
}

func encodeLabels(labels []string) string {
	return ":" + strings.Join(labels, ":") + ":"
}

func decodeLabels(s string) []string {
	s = strings.Trim(s, ":")
	if s == "" {
		return nil
	}
	return strings.Split(s, ":")
}

func encodeProps(props map[string]any) ([]byte, error) {
	if len(props) == 0 {
		return nil, nil
	}
	b, err := msgpack.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: encode properties: %w", err)
	}
	return b, nil
}

func decodeProps(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var props map[string]any
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("dialect/sql: decode properties: %w", err)
	}
	for k, v := range props {
		props[k] = normalize(v)
	}
	return props, nil
}

// normalize reports integers as int64 where they fit.
func normalize(v any) any {
	switch v := v.(type) {
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
	case []any:
		for i, e := range v {
			v[i] = normalize(e)
		}
	case map[string]any:
		for k, e := range v {
			v[k] = normalize(e)
		}
	}
	return v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64s(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect == dialect.Postgres {
		rows, err := s.Query(ctx, query+" RETURNING id", args...)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var id int64
		if !rows.Next() {
			return 0, cmp.Or(rows.Err(), sql.ErrNoRows)
		}
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, rows.Err()
	}
	res, err := s.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateNode implements graphop.Store.
func (s *Store) CreateNode(ctx context.Context, labels []string, props map[string]any) (int64, error) {
	b, err := encodeProps(props)
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, "INSERT INTO ogm_nodes (labels, props) VALUES (?, ?)", encodeLabels(labels), b)
}

// UpdateNode implements graphop.Store.
func (s *Store) UpdateNode(ctx context.Context, id int64, labels []string, props map[string]any) error {
	nodes, err := s.Nodes(ctx, []int64{id})
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return ogm.NewNotFoundError("node", id)
	}
	merged := nodes[0].Labels
	for _, l := range labels {
		if !slices.Contains(merged, l) {
			merged = append(merged, l)
		}
	}
	b, err := encodeProps(props)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx, "UPDATE ogm_nodes SET labels = ?, props = ? WHERE id = ?", encodeLabels(merged), b, id)
	return err
}

// DeleteNode implements graphop.Store.
func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	if _, err := s.Exec(ctx, "DELETE FROM ogm_relationships WHERE start_id = ? OR end_id = ?", id, id); err != nil {
		return err
	}
	_, err := s.Exec(ctx, "DELETE FROM ogm_nodes WHERE id = ?", id)
	return err
}

// DeleteLabel implements graphop.Store.
func (s *Store) DeleteLabel(ctx context.Context, label string) error {
	ids, err := s.FindNodes(ctx, label)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.DeleteNode(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// CreateRelationship implements graphop.Store.
func (s *Store) CreateRelationship(ctx context.Context, start, end int64, typ string, props map[string]any) (int64, error) {
	b, err := encodeProps(props)
	if err != nil {
		return 0, err
	}
	id, err := s.insert(ctx, "INSERT INTO ogm_relationships (type, start_id, end_id, props) VALUES (?, ?, ?, ?)", typ, start, end, b)
	if IsForeignKeyConstraintError(err) {
		return 0, ogm.NewNotFoundError("node", fmt.Sprintf("%d or %d", start, end))
	}
	return id, err
}

// UpdateRelationship implements graphop.Store.
func (s *Store) UpdateRelationship(ctx context.Context, id int64, props map[string]any) error {
	rows, err := s.Query(ctx, "SELECT id FROM ogm_relationships WHERE id = ?", id)
	if err != nil {
		return err
	}
	found := rows.Next()
	if err := cmp.Or(rows.Err(), rows.Close()); err != nil {
		return err
	}
	if !found {
		return ogm.NewNotFoundError("relationship", id)
	}
	b, err := encodeProps(props)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx, "UPDATE ogm_relationships SET props = ? WHERE id = ?", b, id)
	return err
}

// DeleteRelationships implements graphop.Store.
func (s *Store) DeleteRelationships(ctx context.Context, start, end int64, typ string) error {
	_, err := s.Exec(ctx, "DELETE FROM ogm_relationships WHERE start_id = ? AND end_id = ? AND type = ?", start, end, typ)
	return err
}

// FindNodes implements graphop.Store.
func (s *Store) FindNodes(ctx context.Context, label string) ([]int64, error) {
	rows, err := s.Query(ctx, "SELECT id, labels FROM ogm_nodes WHERE labels LIKE ? ORDER BY id", "%"+encodeLabels([]string{label})+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var (
			id     int64
			labels string
		)
		if err := rows.Scan(&id, &labels); err != nil {
			return nil, err
		}
		// LIKE treats '_' and '%' in labels as wildcards.
		if slices.Contains(decodeLabels(labels), label) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// Nodes implements graphop.Store.
func (s *Store) Nodes(ctx context.Context, ids []int64) ([]dialect.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.Query(ctx, "SELECT id, labels, props FROM ogm_nodes WHERE id IN ("+placeholders(len(ids))+")", int64s(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[int64]dialect.Node, len(ids))
	for rows.Next() {
		var (
			n      dialect.Node
			labels string
			props  []byte
		)
		if err := rows.Scan(&n.ID, &labels, &props); err != nil {
			return nil, err
		}
		n.Labels = decodeLabels(labels)
		if n.Properties, err = decodeProps(props); err != nil {
			return nil, err
		}
		byID[n.ID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]dialect.Node, 0, len(byID))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, n)
			delete(byID, id)
		}
	}
	return out, nil
}

// Relationships implements graphop.Store.
func (s *Store) Relationships(ctx context.Context, ids []int64) ([]dialect.Relationship, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	in := placeholders(len(ids))
	args := append(int64s(ids), int64s(ids)...)
	rows, err := s.Query(ctx, "SELECT id, type, start_id, end_id, props FROM ogm_relationships WHERE start_id IN ("+in+") OR end_id IN ("+in+") ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dialect.Relationship
	for rows.Next() {
		var (
			r     dialect.Relationship
			props []byte
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Start, &r.End, &props); err != nil {
			return nil, err
		}
		if r.Properties, err = decodeProps(props); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Purge implements graphop.Store.
func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.Exec(ctx, "DELETE FROM ogm_relationships"); err != nil {
		return err
	}
	_, err := s.Exec(ctx, "DELETE FROM ogm_nodes")
	return err
}

var _ graphop.Store = (*Store)(nil)
