package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultUnitTimeout is how long the caller waits for one unit.
const DefaultUnitTimeout = 10 * time.Minute

// UnitFunc processes one unit of a batch, typically one DOI or one page.
type UnitFunc func(ctx context.Context, id string) error

// UnitResult is the outcome of one unit.
type UnitResult struct {
	ID       string        `json:"id"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the unit succeeded.
func (r UnitResult) OK() bool {
	return r.Err == nil
}

// BatchReport aggregates the results of a batch run. Results are in input
// order.
type BatchReport struct {
	RunID    string       `json:"run_id"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Results  []UnitResult `json:"results"`
}

// Succeeded counts the units that finished without error.
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the units that ended with an error.
func (r *BatchReport) Failed() []UnitResult {
	var out []UnitResult
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// BatchProcessor fans units out to isolated workers. A failing, panicking
// or hanging unit is recorded in the report and never affects its
// siblings.
type BatchProcessor struct {
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent units.
// Default is 10 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithUnitTimeout sets how long the caller waits for a unit.
func WithUnitTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		concurrency: 10,
		timeout:     DefaultUnitTimeout,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// Process runs fn for every id. It always returns a report with one result
// per id; units that could not start because ctx was cancelled carry the
// context error.
func (bp *BatchProcessor) Process(ctx context.Context, ids []string, fn UnitFunc) *BatchReport {
	report := &BatchReport{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Results: make([]UnitResult, len(ids)),
	}
	logger := bp.logger.With("run_id", report.RunID)

	logger.Info("starting batch",
		"units", len(ids),
		"concurrency", bp.concurrency,
	)

	// Each goroutine writes only its own slot, so no lock is needed.
	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			start := time.Now()
			err := ctx.Err()
			if err == nil {
				err = bp.runUnit(ctx, id, fn)
			}

			res := UnitResult{ID: id, Err: err, Duration: time.Since(start)}
			if err != nil {
				res.Error = err.Error()
				logger.Warn("unit failed", "id", id, "error", err)
			} else {
				logger.Debug("unit completed", "id", id)
			}
			report.Results[i] = res
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // units never return errors to the group

	report.Finished = time.Now()
	logger.Info("batch complete",
		"units", len(ids),
		"failed", len(ids)-report.Succeeded(),
		"elapsed", report.Finished.Sub(report.Started),
	)
	return report
}

// runUnit waits for fn up to the unit timeout. A unit that outlives the
// timeout is abandoned with its context cancelled.
func (bp *BatchProcessor) runUnit(ctx context.Context, id string, fn UnitFunc) error {
	unitCtx, cancel := context.WithTimeout(ctx, bp.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				bp.logger.Error("unit panicked",
					"id", id,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				done <- fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			}
		}()
		done <- fn(unitCtx, id)
	}()

	select {
	case err := <-done:
		return err
	case <-unitCtx.Done():
		if errors.Is(unitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %s", ErrWorkerTimeout, bp.timeout)
		}
		return unitCtx.Err()
	}
}
