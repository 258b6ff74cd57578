// Package operations runs the comparison pipeline as a sequence of steps.
//
// Steps are registered in a Registry and executed by a Manager in dependency
// order. Each step reads and writes typed values on a shared RunState:
//
//	build_features | load_panel -> load_detectors -> reconcile -> compare -> export
//
// A step whose dependency did not complete is skipped. Any step error stops
// the run. An error carrying a panel invariant violation is fatal and clears
// every reconciled set from the state, so a failed run never exposes partial
// canonical anomalies.
//
// Every run gets a run ID and trace ID on its context, one span per step and
// per-step duration and error metrics when PipelineMetrics are supplied.
package operations
