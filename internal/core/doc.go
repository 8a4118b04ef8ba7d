// Package core runs validations and turns their diagnostics into reports.
//
// It sits between the engines (package csvw for CSVW metadata, package schema
// for JSON Table Schema) and the outer surfaces: the HTTP server and the CLI
// use it unchanged.
//
// # Runs
//
// A run is one call to [Service.ValidateTables] or [Service.ValidateSchema].
// Every run gets a fresh session, so concurrent runs never share key indices
// or uniqueness state. The service assigns a run id, adds it to the context
// logger, and records the run on the optional metrics collector and
// [RunStore].
//
//	svc := core.NewService(
//	    core.WithLimiter(core.NewLimiter(4, 30*time.Second)),
//	    core.WithParallelism(4),
//	)
//	group, err := csvw.LoadMetadata("tables.json")
//	...
//	sources, closeAll, err := core.OpenTableFiles(group, nil)
//	defer closeAll()
//	report, err := svc.ValidateTables(ctx, group, sources, core.Options{})
//
// Table data is read in a first phase, one goroutine per table up to the
// configured parallelism. Foreign keys are reconciled in a second phase after
// every table has been read.
//
// # Admission
//
// [Limiter] bounds concurrent runs. A run blocked for longer than the wait
// time fails with [ErrTooManyRuns].
//
// # Errors
//
// Operational errors (bad metadata, unreadable CSV, a busy server) are
// returned as errors. Data problems are never errors; they are diagnostics in
// the [Report]. [MapError] and [MapKind] translate both into [UserMessage]
// values with a support code.
package core
