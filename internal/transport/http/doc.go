// Package http serves the most recent comparison as a read-only JSON API.
//
// Routes:
//
//	GET /healthz                                  liveness and last run status
//	GET /metrics                                  Prometheus exposition
//	GET /api/v1/report                            comparison summary
//	GET /api/v1/report.txt                        plain-text summary
//	GET /api/v1/detectors/{detector}/anomalies    canonical set, ?ticker= filters
//	GET /api/v1/detectors/{detector}/counts       per-ticker counts, ?top= limits
//	GET /api/v1/overlap                           overlap set, ?ticker= filters
//
// Report routes answer 503 until a run has produced a comparison.
package http
