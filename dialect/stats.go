package dialect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// QueryStats holds transport statistics.
type QueryStats struct {
	// Batches is the number of Execute calls.
	Batches atomic.Int64
	// Statements is the number of statements sent.
	Statements atomic.Int64
	// Begins, Commits and Rollbacks count transaction calls.
	Begins    atomic.Int64
	Commits   atomic.Int64
	Rollbacks atomic.Int64
	// TotalDuration is the total time spent in Execute.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowBatches is the count of batches exceeding the slow threshold.
	SlowBatches atomic.Int64
	// Errors is the count of failed calls.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		Batches:       s.Batches.Load(),
		Statements:    s.Statements.Load(),
		Begins:        s.Begins.Load(),
		Commits:       s.Commits.Load(),
		Rollbacks:     s.Rollbacks.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowBatches:   s.SlowBatches.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.Batches.Store(0)
	s.Statements.Store(0)
	s.Begins.Store(0)
	s.Commits.Store(0)
	s.Rollbacks.Store(0)
	s.TotalDuration.Store(0)
	s.SlowBatches.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of transport statistics.
type StatsSnapshot struct {
	Batches       int64
	Statements    int64
	Begins        int64
	Commits       int64
	Rollbacks     int64
	TotalDuration time.Duration
	SlowBatches   int64
	Errors        int64
}

// AvgBatchDuration returns the average Execute duration.
func (s StatsSnapshot) AvgBatchDuration() time.Duration {
	if s.Batches == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Batches)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"batches=%d statements=%d begins=%d commits=%d rollbacks=%d duration=%s avg=%s slow=%d errors=%d",
		s.Batches, s.Statements, s.Begins, s.Commits, s.Rollbacks,
		s.TotalDuration, s.AvgBatchDuration(), s.SlowBatches, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow batch is detected.
type SlowQueryHook func(ctx context.Context, stmts []Statement, duration time.Duration)

// StatsDriver wraps a Driver with statistics collection.
type StatsDriver struct {
	Driver
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the threshold for slow batch detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow batches.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow batches to the default logger.
func WithSlowQueryLog() StatsOption {
	return WithSlowQueryHook(func(_ context.Context, stmts []Statement, duration time.Duration) {
		slog.Warn("slow query detected", "duration", duration, "statements", len(stmts), "query", summarize(stmts))
	})
}

// NewStatsDriver wraps a Driver with statistics collection.
func NewStatsDriver(drv Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// SlowThreshold returns the current slow batch threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold updates the slow batch threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

// Begin opens a transaction and counts it.
func (d *StatsDriver) Begin(ctx context.Context, opts TxOptions) (Endpoint, error) {
	d.stats.Begins.Add(1)
	ep, err := d.Driver.Begin(ctx, opts)
	d.count(err)
	return ep, err
}

// Execute runs a batch and records statistics.
func (d *StatsDriver) Execute(ctx context.Context, ep Endpoint, stmts []Statement) ([]Result, error) {
	start := time.Now()
	res, err := d.Driver.Execute(ctx, ep, stmts)
	duration := time.Since(start)
	d.stats.Batches.Add(1)
	d.stats.Statements.Add(int64(len(stmts)))
	d.stats.TotalDuration.Add(int64(duration))
	d.count(err)

	d.mu.RLock()
	threshold := d.slowThreshold
	hook := d.slowHook
	d.mu.RUnlock()

	if duration > threshold {
		d.stats.SlowBatches.Add(1)
		if hook != nil {
			hook(ctx, stmts, duration)
		}
	}
	return res, err
}

// Commit commits a transaction and counts it.
func (d *StatsDriver) Commit(ctx context.Context, ep Endpoint) error {
	d.stats.Commits.Add(1)
	err := d.Driver.Commit(ctx, ep)
	d.count(err)
	return err
}

// Rollback rolls a transaction back and counts it.
func (d *StatsDriver) Rollback(ctx context.Context, ep Endpoint) error {
	d.stats.Rollbacks.Add(1)
	err := d.Driver.Rollback(ctx, ep)
	d.count(err)
	return err
}

func (d *StatsDriver) count(err error) {
	if err != nil {
		d.stats.Errors.Add(1)
	}
}

// DebugDriver wraps a Driver with debug logging.
type DebugDriver struct {
	Driver
	log func(context.Context, ...any)
}

// DebugOption configures the DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets a custom log function.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugDriver) {
		d.log = logFunc
	}
}

// NewDebugDriver wraps a Driver with debug logging. Parameters are dumped
// with spew so nested maps and refs stay readable.
func NewDebugDriver(drv Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver: drv,
		log: func(_ context.Context, v ...any) {
			slog.Debug(fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var dumper = spew.ConfigState{Indent: " ", SortKeys: true, DisablePointerAddresses: true, DisableCapacities: true}

// Begin opens a transaction and logs it.
func (d *DebugDriver) Begin(ctx context.Context, opts TxOptions) (Endpoint, error) {
	ep, err := d.Driver.Begin(ctx, opts)
	if err != nil {
		d.log(ctx, fmt.Sprintf("begin transaction: %v", err))
		return ep, err
	}
	d.log(ctx, fmt.Sprintf("begin transaction %s (autocommit=%t)", ep, ep.SingleShot()))
	return ep, nil
}

// Execute logs every statement of the batch and runs it.
func (d *DebugDriver) Execute(ctx context.Context, ep Endpoint, stmts []Statement) ([]Result, error) {
	for _, s := range stmts {
		d.log(ctx, fmt.Sprintf("tx %s: %s params: %s", ep, s, dumper.Sdump(s.Params)))
	}
	return d.Driver.Execute(ctx, ep, stmts)
}

// Commit commits a transaction and logs it.
func (d *DebugDriver) Commit(ctx context.Context, ep Endpoint) error {
	d.log(ctx, fmt.Sprintf("commit transaction %s", ep))
	return d.Driver.Commit(ctx, ep)
}

// Rollback rolls a transaction back and logs it.
func (d *DebugDriver) Rollback(ctx context.Context, ep Endpoint) error {
	d.log(ctx, fmt.Sprintf("rollback transaction %s", ep))
	return d.Driver.Rollback(ctx, ep)
}

func summarize(stmts []Statement) string {
	parts := make([]string, 0, len(stmts))
	for _, s := range stmts {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "; ")
}

// Ensure interfaces are implemented.
var (
	_ Driver = (*StatsDriver)(nil)
	_ Driver = (*DebugDriver)(nil)
)
