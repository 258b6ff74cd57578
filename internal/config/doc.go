// Package config provides configuration loading for the panel builder and
// the detector comparison tools.
//
// # Configuration Sources
//
// Configuration is assembled in this order, later sources winning:
//
//  1. Default values from struct tags
//  2. Environment variables (PANELRECON_*)
//  3. A YAML file passed with -config, or panelrecon.yaml / configs/panelrecon.yaml
//
// # Environment Variables
//
//	PANELRECON_FEATURES_VOLATILITY_WINDOW=10
//	PANELRECON_FEATURES_Z_SCORE_WINDOW=20
//	PANELRECON_DETECTORS_FLAG_COLUMN=Anomaly
//	PANELRECON_DETECTORS_SLIDING_PATH=output/sliding_anomalies.csv
//	PANELRECON_DETECTORS_HEAP_PATH=output/heap_anomalies.csv
//	PANELRECON_LOGGING_LEVEL=debug
//
// Only prefixed names are read; an unrelated PATH or OUTPUT in the
// environment never leaks into the configuration.
//
// # Validation
//
// Load validates the result with go-playground/validator struct tags and
// rejects two detectors sharing one ID.
package config
