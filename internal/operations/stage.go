package operations

import (
	"context"
	"sync"
	"time"
)

// Step is one stage of a pipeline run
type Step interface {
	// ID returns the unique identifier for this Step
	ID() string

	// Name returns the human-readable name for this Step
	Name() string

	// Dependencies returns the IDs of steps that must complete first
	Dependencies() []string

	// Execute runs the Step against the run state
	Execute(ctx context.Context, state *RunState) error
}

// StepStatus represents the current status of a Step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState represents the runtime state of a Step
type StepState struct {
	mu        sync.RWMutex
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Message   string     `json:"message,omitempty"`
	Error     error      `json:"-"`
}

// NewStepState creates a pending step state
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:     id,
		Name:   name,
		Status: StepStatusPending,
	}
}

// Start marks the Step as active and sets the start time
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = &now
	s.Status = StepStatusActive
}

func (s *StepState) finish(status StepStatus, message string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = status
	s.Message = message
	s.Error = err
}

func (s *StepState) Complete() { s.finish(StepStatusCompleted, "", nil) }

// Fail records err as the step outcome.
func (s *StepState) Fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.finish(StepStatusFailed, msg, err)
}

// Skip marks a step that never ran, with the reason shown to callers.
func (s *StepState) Skip(reason string) { s.finish(StepStatusSkipped, reason, nil) }

// GetStatus returns the current status
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns the duration of the Step execution
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// BaseStep provides ID, Name and Dependencies for Step implementations
type BaseStep struct {
	id           string
	name         string
	dependencies []string
}

func NewBaseStep(id, name string, dependencies []string) BaseStep {
	return BaseStep{id: id, name: name, dependencies: append([]string{}, dependencies...)}
}

func (b *BaseStep) ID() string             { return b.id }
func (b *BaseStep) Name() string           { return b.name }
func (b *BaseStep) Dependencies() []string { return b.dependencies }
