// Package app wires configuration, logging, telemetry, the pipeline manager
// and the report server into one Application.
//
// Typical use:
//
//	application, err := app.NewApplication(cfg, operations.ModeLoadPanel)
//	if err != nil {
//	    return err
//	}
//	defer application.Close(ctx)
//	state, err := application.RunPipeline(ctx)
//
// Serve blocks until its context is cancelled, then shuts the server down
// within the configured timeout. Nothing in this package calls os.Exit.
package app
