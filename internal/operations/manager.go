package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"panelrecon/internal/infrastructure"
	"panelrecon/pkg/contracts/domain"
)

// TracerName is the instrumentation name used for run spans
const TracerName = "panelrecon/operations"

// Manager runs the registered steps in dependency order
type Manager struct {
	registry    *Registry
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *infrastructure.PipelineMetrics
	stepTimeout time.Duration

	mu       sync.RWMutex
	runs     map[string]*RunState
	last     *RunState
	reported *RunState // latest finished run holding a comparison
}

// Option configures a Manager
type Option func(*Manager)

// WithTracer sets the tracer used for run and step spans
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMetrics sets the instruments recorded per step
func WithMetrics(metrics *infrastructure.PipelineMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithStepTimeout bounds each step's execution. Zero means no bound.
func WithStepTimeout(d time.Duration) Option {
	return func(m *Manager) { m.stepTimeout = d }
}

// NewManager creates a manager over registry
func NewManager(registry *Registry, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		registry: registry,
		logger:   infrastructure.WithComponent(logger, "operations"),
		tracer:   otel.Tracer(TracerName),
		runs:     make(map[string]*RunState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetRegistry returns the step registry
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// Execute runs every registered step once. The returned state is always
// non-nil once the run has started, even when err is not.
func (m *Manager) Execute(ctx context.Context) (*RunState, error) {
	ctx, runID := infrastructure.NewRunContext(ctx)
	state := NewRunState(runID)
	m.store(state)

	ctx, span := m.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		state.setStatus(RunStatusFailed, err)
		infrastructure.RecordError(ctx, err)
		return state, err
	}
	for _, step := range steps {
		state.addStep(step)
	}

	m.logger.InfoContext(ctx, "run started", "steps", len(steps))
	state.setStatus(RunStatusRunning, nil)

	runErr := m.executeSequential(ctx, state, steps)

	switch {
	case runErr == nil:
		state.setStatus(RunStatusCompleted, nil)
		m.logger.InfoContext(ctx, "run completed",
			"duration", state.Duration(),
			"outputs", len(state.Outputs()))
	case GetErrorType(runErr) == ErrorTypeCancellation:
		state.setStatus(RunStatusCancelled, runErr)
		m.logger.WarnContext(ctx, "run cancelled", "error", runErr)
	default:
		if IsFatal(runErr) {
			state.ClearCanonical()
		}
		state.setStatus(RunStatusFailed, runErr)
		infrastructure.RecordError(ctx, runErr)
		m.logger.ErrorContext(ctx, "run failed",
			"error", runErr,
			"fatal", IsFatal(runErr))
	}

	if _, ok := state.Comparison(); ok {
		m.mu.Lock()
		m.reported = state
		m.mu.Unlock()
	}
	return state, runErr
}

func (m *Manager) executeSequential(ctx context.Context, state *RunState, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			m.skipRemaining(state, steps[i:], "run cancelled")
			return NewCancellationError(step.ID(), err)
		}

		if dep, ok := m.unmetDependency(state, step); !ok {
			state.Step(step.ID()).Skip(fmt.Sprintf("dependency %s not completed", dep))
			m.logger.WarnContext(ctx, "step skipped",
				"step", step.ID(),
				"dependency", dep)
			continue
		}

		if err := m.executeStep(ctx, state, step); err != nil {
			m.skipRemaining(state, steps[i+1:], fmt.Sprintf("step %s failed", step.ID()))
			return err
		}
	}
	return nil
}

func (m *Manager) executeStep(ctx context.Context, state *RunState, step Step) error {
	st := state.Step(step.ID())

	ctx, span := m.tracer.Start(ctx, "step."+step.ID(),
		trace.WithAttributes(attribute.String("step.id", step.ID())))
	defer span.End()

	stepCtx := ctx
	if m.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, m.stepTimeout)
		defer cancel()
	}

	m.logger.DebugContext(ctx, "step started", "step", step.ID(), "name", step.Name())
	st.Start()
	start := time.Now()
	err := step.Execute(stepCtx, state)
	duration := time.Since(start)
	m.metrics.RecordStep(ctx, step.ID(), duration, err)

	if err == nil {
		st.Complete()
		m.logger.InfoContext(ctx, "step completed",
			"step", step.ID(),
			"duration", duration)
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = NewCancellationError(step.ID(), err)
	} else {
		err = WrapError(err, step.ID())
	}
	st.Fail(err)
	infrastructure.RecordError(ctx, err)
	m.logger.ErrorContext(ctx, "step failed",
		"step", step.ID(),
		"duration", duration,
		"error", err)
	return err
}

// unmetDependency returns the first dependency that did not complete
func (m *Manager) unmetDependency(state *RunState, step Step) (string, bool) {
	for _, dep := range step.Dependencies() {
		ds := state.Step(dep)
		if ds == nil || ds.GetStatus() != StepStatusCompleted {
			return dep, false
		}
	}
	return "", true
}

func (m *Manager) skipRemaining(state *RunState, steps []Step, reason string) {
	for _, step := range steps {
		if st := state.Step(step.ID()); st != nil && st.GetStatus() == StepStatusPending {
			st.Skip(reason)
		}
	}
}

func (m *Manager) store(state *RunState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[state.ID] = state
	m.last = state
}

// GetRun returns a run by ID
func (m *Manager) GetRun(id string) (*RunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.runs[id]
	return state, ok
}

// LastRun returns the most recently started run
func (m *Manager) LastRun() (*RunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.last != nil
}

// Comparison returns the comparison of the most recent finished run that
// produced one. A later run that fails before comparing does not hide it.
func (m *Manager) Comparison() (domain.Comparison, bool) {
	m.mu.RLock()
	reported := m.reported
	m.mu.RUnlock()
	if reported == nil {
		return domain.Comparison{}, false
	}
	return reported.Comparison()
}
