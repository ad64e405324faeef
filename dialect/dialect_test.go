package dialect_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/syssam/ogm/dialect"
)

// stubDriver records calls and fails on demand.
type stubDriver struct {
	delay   time.Duration
	fail    error
	batches [][]dialect.Statement
}

func (d *stubDriver) Begin(context.Context, dialect.TxOptions) (dialect.Endpoint, error) {
	return dialect.Endpoint{URL: "stub/1"}, d.fail
}

func (d *stubDriver) Execute(_ context.Context, _ dialect.Endpoint, stmts []dialect.Statement) ([]dialect.Result, error) {
	time.Sleep(d.delay)
	d.batches = append(d.batches, stmts)
	if d.fail != nil {
		return nil, d.fail
	}
	return make([]dialect.Result, len(stmts)), nil
}

func (d *stubDriver) Commit(context.Context, dialect.Endpoint) error   { return d.fail }
func (d *stubDriver) Rollback(context.Context, dialect.Endpoint) error { return d.fail }
func (d *stubDriver) Dialect() string                                  { return "stub" }
func (d *stubDriver) Close() error                                     { return nil }

func TestEndpointSingleShot(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ep   dialect.Endpoint
		want bool
	}{
		{ep: dialect.Endpoint{URL: "http://db/tx/1"}, want: false},
		{ep: dialect.Endpoint{URL: "http://db/tx/commit"}, want: true},
		{ep: dialect.Endpoint{URL: "mem/3", AutoCommit: true}, want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ep.SingleShot(), tt.ep.String())
	}
}

func TestNodeKeyResolve(t *testing.T) {
	t.Parallel()
	ids := map[dialect.Ref]int64{"n1": 7}
	id, err := dialect.NodeKey{ID: 3}.Resolve(ids)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	id, err = dialect.NodeKey{Ref: "n1"}.Resolve(ids)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	_, err = dialect.NodeKey{Ref: "n2"}.Resolve(ids)
	assert.ErrorContains(t, err, "unresolved reference")
	assert.Equal(t, "#3", dialect.NodeKey{ID: 3}.String())
	assert.Equal(t, "n1", dialect.NodeKey{Ref: "n1"}.String())
}

func TestBind(t *testing.T) {
	t.Parallel()
	params := map[string]any{"start": dialect.Ref("n1"), "end": int64(4), "props": map[string]any{"a": 1}}
	out, err := dialect.Bind(params, map[dialect.Ref]int64{"n1": 9})
	require.NoError(t, err)
	assert.Equal(t, int64(9), out["start"])
	assert.Equal(t, int64(4), out["end"])
	assert.Equal(t, dialect.Ref("n1"), params["start"], "input is not modified")

	_, err = dialect.Bind(params, nil)
	assert.Error(t, err)
}

func TestSegments(t *testing.T) {
	t.Parallel()
	create := func(ref dialect.Ref) dialect.Statement {
		return dialect.Statement{Returns: ref, Op: dialect.Op{Kind: dialect.OpCreateNode}}
	}
	link := func(a, b dialect.Ref) dialect.Statement {
		return dialect.Statement{Op: dialect.Op{
			Kind:  dialect.OpCreateRelationship,
			Start: dialect.NodeKey{Ref: a},
			End:   dialect.NodeKey{Ref: b},
		}}
	}
	stmts := []dialect.Statement{create("n1"), create("n2"), link("n1", "n2"), create("n3"), link("n2", "n3")}
	segs := dialect.Segments(stmts)
	require.Len(t, segs, 3)
	assert.Len(t, segs[0], 2)
	assert.Len(t, segs[1], 2)
	assert.Len(t, segs[2], 1)

	assert.Len(t, dialect.Segments(stmts[:2]), 1)
	assert.Empty(t, dialect.Segments(nil))
}

func TestGraphMerge(t *testing.T) {
	t.Parallel()
	g := dialect.Graph{
		Nodes:         []dialect.Node{{ID: 1}, {ID: 2}},
		Relationships: []dialect.Relationship{{ID: 10, Start: 1, End: 2}},
	}
	g.Merge(dialect.Graph{
		Nodes:         []dialect.Node{{ID: 2}, {ID: 3, Labels: []string{"X"}}},
		Relationships: []dialect.Relationship{{ID: 10}, {ID: 11, Start: 2, End: 3}},
	})
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Relationships, 2)
	n, ok := g.Node(3)
	require.True(t, ok)
	assert.Equal(t, []string{"X"}, n.Labels)
	_, ok = g.Node(4)
	assert.False(t, ok)
	assert.True(t, dialect.Graph{}.Empty())
}

func TestStatsDriver(t *testing.T) {
	t.Parallel()
	stub := &stubDriver{}
	var slow []int
	drv := dialect.NewStatsDriver(stub,
		dialect.WithSlowThreshold(time.Hour),
		dialect.WithSlowQueryHook(func(_ context.Context, stmts []dialect.Statement, _ time.Duration) {
			slow = append(slow, len(stmts))
		}),
	)
	ctx := context.Background()
	ep, err := drv.Begin(ctx, dialect.TxOptions{})
	require.NoError(t, err)
	_, err = drv.Execute(ctx, ep, make([]dialect.Statement, 3))
	require.NoError(t, err)
	require.NoError(t, drv.Commit(ctx, ep))

	drv.SetSlowThreshold(0)
	stub.delay = time.Millisecond
	_, err = drv.Execute(ctx, ep, make([]dialect.Statement, 2))
	require.NoError(t, err)

	stub.fail = errors.New("down")
	assert.Error(t, drv.Rollback(ctx, ep))

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(2), s.Batches)
	assert.Equal(t, int64(5), s.Statements)
	assert.Equal(t, int64(1), s.Begins)
	assert.Equal(t, int64(1), s.Commits)
	assert.Equal(t, int64(1), s.Rollbacks)
	assert.Equal(t, int64(1), s.SlowBatches)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, []int{2}, slow)
	assert.Contains(t, s.String(), "batches=2")

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(dialect.NewStatsCollector(drv)))
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP ogm_transport_statements_total Statements executed.
# TYPE ogm_transport_statements_total counter
ogm_transport_statements_total{dialect="stub"} 5
`), "ogm_transport_statements_total"))
	assert.Equal(t, 8, testutil.CollectAndCount(dialect.NewStatsCollector(drv)))

	drv.QueryStats().Reset()
	assert.Zero(t, drv.QueryStats().Stats().Batches)
	assert.Zero(t, drv.QueryStats().Stats().AvgBatchDuration())
}

func TestDebugDriver(t *testing.T) {
	t.Parallel()
	var lines []string
	drv := dialect.NewDebugDriver(&stubDriver{}, dialect.DebugWithLog(func(_ context.Context, v ...any) {
		for _, x := range v {
			lines = append(lines, x.(string))
		}
	}))
	ctx := context.Background()
	ep, err := drv.Begin(ctx, dialect.TxOptions{})
	require.NoError(t, err)
	_, err = drv.Execute(ctx, ep, []dialect.Statement{{
		Cypher: "MATCH (n) RETURN n",
		Params: map[string]any{"b": 2, "a": "x"},
	}})
	require.NoError(t, err)
	require.NoError(t, drv.Commit(ctx, ep))

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "begin transaction stub/1")
	assert.Contains(t, lines[1], "MATCH (n) RETURN n")
	assert.Less(t, strings.Index(lines[1], `"a"`), strings.Index(lines[1], `"b"`), "params are dumped with sorted keys")
	assert.Contains(t, lines[2], "commit transaction stub/1")
}

func TestTraceDriver(t *testing.T) {
	t.Parallel()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	stub := &stubDriver{}
	drv := dialect.NewTraceDriver(stub, dialect.WithTracer(tp.Tracer("test")))

	ctx := context.Background()
	ep, err := drv.Begin(ctx, dialect.TxOptions{})
	require.NoError(t, err)
	_, err = drv.Execute(ctx, ep, []dialect.Statement{{Op: dialect.Op{Kind: dialect.OpCreateNode}}})
	require.NoError(t, err)
	stub.fail = errors.New("lost")
	require.Error(t, drv.Rollback(ctx, ep))

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, dialect.SpanBegin, spans[0].Name())
	assert.Equal(t, dialect.SpanExecute, spans[1].Name())
	assert.Equal(t, dialect.SpanRollback, spans[2].Name())
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
	assert.Equal(t, codes.Error, spans[2].Status().Code)
	var ops []string
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "ogm.operations" {
			ops = kv.Value.AsStringSlice()
		}
	}
	assert.Equal(t, []string{"create node"}, ops)
}
