// Package core provides the business logic for shift roster imports.
//
// This package turns an untyped spreadsheet grid into canonical shift records
// and worker statistics. It has no UI, file or storage dependencies and can be
// used by the web server, the CLI or tests without modification.
//
// # Pipeline
//
// A run goes through four stages, each consuming the previous one's output:
//
//  1. [Detect] finds the header row, maps columns to fields and bounds the
//     data block above the trailing TOTAL / no-coverage rows.
//  2. [Correct] repairs dates, shift-type labels, worker names and counts on a
//     copy of the grid.
//  3. [Validate] reports row errors and warnings.
//  4. [Canonicalize] emits [ShiftRecord] values and [WorkerStat] aggregates and
//     reconciles them with the declared totals.
//
// [Pipeline.Run] chains the stages and decides acceptance:
//
//	reg := core.NewRegistry()
//	profiles.RegisterBuiltins(reg)
//	res := core.NewPipeline(reg, slog.Default()).Run(grid, core.Options{FileName: "march.xlsx"})
//	if !res.Accepted {
//	    fmt.Println(res.Failure.Message)
//	}
//
// # Profiles
//
// A [Profile] bundles header synonyms, shift-type synonyms, correction policy
// and validation thresholds. Profiles live in a [Registry]; registered
// profiles are shared read-only between concurrent runs. New profiles can be
// derived from registered ones with [Registry.DeriveProfile].
//
// # Diagnostics
//
// Every run owns a [Log]. Corrections that change meaning are logged once per
// occurrence and grouped by [Log.Corrections]; cosmetic whitespace and case
// cleanup is never logged (see [IsSemanticChange]).
//
// # Error Handling
//
// Terminal failures never escape as errors from [Pipeline.Run]; they are
// described by [Result.Failure]. Technical errors are mapped to user-facing
// messages with [MapError].
package core
