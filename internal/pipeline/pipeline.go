package pipeline

import (
	"context"
	"log/slog"
)

// Step is one probe of the evidence collector.
type Step interface {
	// Do runs the probe against the pass. Network and parse failures are
	// recorded in the pass and do not produce an error; a returned error
	// means the probe could not run at all.
	Do(ctx context.Context, pass *Pass) error

	// Name returns the probe name for logging.
	Name() string
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError makes the pipeline run the remaining steps after a
// step fails. The failure is still recorded on the work.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. Cancellation is checked between
// steps only.
func (p *Pipeline) Execute(ctx context.Context, pass *Pass) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"doi", pass.Work.DOI,
				"reason", ctx.Err(),
			)
			pass.RecordError(step.Name(), ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"doi", pass.Work.DOI,
		)

		if err := step.Do(ctx, pass); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"doi", pass.Work.DOI,
				"error", err,
			)
			pass.RecordError(step.Name(), err)

			if !p.continueOnError {
				return err
			}
		}

		pass.Performed = append(pass.Performed, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
