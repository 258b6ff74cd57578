package operations

import (
	"sort"
	"sync"
	"time"

	"panelrecon/internal/detection"
	"panelrecon/pkg/contracts/domain"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState carries the typed values passed between steps of one run. Each
// value is written once by its producing step and only read afterwards.
type RunState struct {
	mu sync.RWMutex

	ID        string
	Status    RunStatus
	StartTime time.Time
	EndTime   *time.Time
	Steps     map[string]*StepState
	Error     error

	panel      *domain.Panel
	detectors  map[string]detection.Result
	canonical  map[string][]domain.CanonicalAnomaly
	diags      map[string]detection.Diagnostics
	comparison *domain.Comparison
	outputs    []string
}

// NewRunState creates a pending run
func NewRunState(id string) *RunState {
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		detectors: make(map[string]detection.Result),
		diags:     make(map[string]detection.Diagnostics),
	}
}

func (s *RunState) setStatus(status RunStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = status
	if status != RunStatusRunning {
		now := time.Now()
		s.EndTime = &now
	}
	if err != nil {
		s.Error = err
	}
}

// GetStatus returns the run status
func (s *RunState) GetStatus() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Step returns the state of a step, or nil
func (s *RunState) Step(id string) *StepState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Steps[id]
}

func (s *RunState) addStep(step Step) *StepState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := NewStepState(step.ID(), step.Name())
	s.Steps[step.ID()] = st
	return st
}

// SetPanel stores the run's panel
func (s *RunState) SetPanel(p *domain.Panel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panel = p
}

// Panel returns the run's panel, nil before a panel step ran
func (s *RunState) Panel() *domain.Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panel
}

// SetDetectorResult stores a loaded detector result
func (s *RunState) SetDetectorResult(res detection.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectors[res.DetectorID] = res
	s.diags[res.DetectorID] = append(detection.Diagnostics(nil), res.Diagnostics...)
}

// DetectorResult returns a loaded detector result
func (s *RunState) DetectorResult(id string) (detection.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.detectors[id]
	return res, ok
}

// DetectorIDs returns the loaded detector IDs, sorted
func (s *RunState) DetectorIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.detectors))
	for id := range s.detectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetCanonical stores every detector's reconciled set at once, with the
// reconcile diagnostics appended to the load diagnostics
func (s *RunState) SetCanonical(sets map[string][]domain.CanonicalAnomaly, diags map[string]detection.Diagnostics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canonical = sets
	for id, d := range diags {
		s.diags[id] = append(s.diags[id], d...)
	}
}

// ClearCanonical drops every reconciled set and any comparison built on them
func (s *RunState) ClearCanonical() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canonical = nil
	s.comparison = nil
}

// Canonical returns one detector's reconciled set
func (s *RunState) Canonical(id string) ([]domain.CanonicalAnomaly, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.canonical[id]
	return set, ok
}

// CanonicalCount returns the number of reconciled anomalies across detectors
func (s *RunState) CanonicalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.canonical {
		n += len(set)
	}
	return n
}

// Diagnostics returns a detector's accumulated diagnostics
func (s *RunState) Diagnostics(id string) detection.Diagnostics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(detection.Diagnostics(nil), s.diags[id]...)
}

// SetComparison stores the comparison result
func (s *RunState) SetComparison(c domain.Comparison) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparison = &c
}

// Comparison returns the comparison, or false before the compare step ran
func (s *RunState) Comparison() (domain.Comparison, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.comparison == nil {
		return domain.Comparison{}, false
	}
	return *s.comparison, true
}

// AddOutput records a written file
func (s *RunState) AddOutput(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, path)
}

// Outputs returns the files written by the run
func (s *RunState) Outputs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.outputs...)
}

// Duration returns the run duration
func (s *RunState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// Err returns the error that ended the run, if any
func (s *RunState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Error
}
