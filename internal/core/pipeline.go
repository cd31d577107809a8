package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
)

// ClassTooManyWarnings marks the warning circuit breaker.
const ClassTooManyWarnings EntryClass = "TooManyWarnings"

// Options select how a single grid is imported.
type Options struct {
	// Profile pins a registered profile. Empty means auto-detect.
	Profile  string
	FileName string
	// Logger overrides the pipeline logger for this run, typically with
	// request-scoped fields attached.
	Logger *slog.Logger
}

// Failure explains why an import was rejected.
type Failure struct {
	Class   EntryClass `json:"class"`
	Reason  string     `json:"reason"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Hint    string     `json:"hint,omitempty"`
}

// Diagnostics is the reviewer's view of a run.
type Diagnostics struct {
	Errors            []Entry           `json:"errors"`
	Warnings          []Entry           `json:"warnings"`
	CorrectionSummary []CorrectionGroup `json:"correctionSummary"`
	RawLog            []Entry           `json:"rawLog"`
}

// Result is everything a run produced, including partial output of a
// rejected import.
type Result struct {
	FileName     string                 `json:"fileName"`
	Profile      string                 `json:"profile"`
	AutoSelected bool                   `json:"autoSelected"`
	ProfileScore int                    `json:"profileScore,omitempty"`
	Structure    *Structure             `json:"structure,omitempty"`
	Validation   *ValidationResult      `json:"validation,omitempty"`
	Records      []ShiftRecord          `json:"records"`
	WorkerStats  map[string]*WorkerStat `json:"workerStats"`
	Summary      Summary                `json:"summary"`
	Diagnostics  Diagnostics            `json:"diagnostics"`
	Accepted     bool                   `json:"accepted"`
	Failure      *Failure               `json:"failure,omitempty"`
	Duration     time.Duration          `json:"duration"`
}

// Pipeline runs detect, correct, validate and canonicalize over a grid.
// A Pipeline is safe for concurrent use; every run owns its own log.
type Pipeline struct {
	registry *Registry
	logger   *slog.Logger
}

// NewPipeline creates a pipeline reading profiles from reg.
func NewPipeline(reg *Registry, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{registry: reg, logger: logger}
}

// Registry returns the profile registry used by the pipeline.
func (pl *Pipeline) Registry() *Registry {
	return pl.registry
}

// Run imports one grid. It never panics and never returns an error: terminal
// failures are described by Result.Failure.
func (pl *Pipeline) Run(grid RawGrid, opts Options) (res *Result) {
	start := time.Now()
	logger := pl.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}
	logger = logger.With("file", opts.FileName)
	log := NewLog(logger)
	res = &Result{FileName: opts.FileName, WorkerStats: map[string]*WorkerStat{}}

	defer func() {
		if rec := recover(); rec != nil {
			err := errors.Newf("import panicked: %v", rec)
			logger.Error("import panicked", "error", err)
			log.Error("InternalError", NoPosition, NoPosition, err.Error(), nil)
			res.Accepted = false
			res.Failure = &Failure{Class: "InternalError", Reason: "Panic", Code: MapError(err).Code, Message: err.Error()}
		}
		res.Diagnostics = Diagnostics{
			Errors:            log.Errors(),
			Warnings:          log.Warnings(),
			CorrectionSummary: log.Corrections(),
			RawLog:            log.Logs(),
		}
		res.Duration = time.Since(start)
	}()

	p, err := pl.selectProfile(grid, opts, res, log)
	if err != nil {
		res.Failure = failureFrom("ProfileError", "ProfileNotFound", err)
		logger.Warn("import rejected", "reason", res.Failure.Reason, "error", err)
		return res
	}
	res.Profile = p.Name
	logger = logger.With("profile", p.Name)
	logger.Info("import started", "rows", len(grid), "auto_selected", res.AutoSelected)

	structure, err := Detect(grid, p, log)
	if err != nil {
		var se *StructureError
		reason := "StructureError"
		if errors.As(err, &se) {
			reason = string(se.Code)
		}
		res.Failure = failureFrom(ClassStructureError, reason, err)
		logger.Warn("import rejected", "reason", reason, "error", err)
		return res
	}
	res.Structure = structure

	corrected := Correct(grid, structure, p, log)
	res.Validation = Validate(corrected, structure, p, log)
	canon := Canonicalize(corrected, structure, p, log)
	res.Records = canon.Records
	res.WorkerStats = canon.WorkerStats
	res.Summary = canon.Summary

	warnings, rowErrors := len(log.Warnings()), len(log.Errors())
	res.Validation.WarningLimitExceeded = warnings > p.Validation.MaxWarnings
	switch {
	case warnings > p.Validation.MaxWarnings:
		err := errors.WithHint(
			errors.Newf("too many warnings: %d exceeds the limit of %d", warnings, p.Validation.MaxWarnings),
			"fix the flagged rows or import with a more permissive profile")
		log.Error(ClassTooManyWarnings, NoPosition, NoPosition, err.Error(),
			map[string]any{"warnings": warnings, "limit": p.Validation.MaxWarnings})
		res.Failure = failureFrom(ClassTooManyWarnings, "TooManyWarnings", err)
	case rowErrors > 0 && !p.Validation.AllowPartialData:
		err := errors.WithHint(
			errors.Newf("%d row errors found", rowErrors),
			"correct the rows listed under errors and upload the file again")
		res.Failure = failureFrom(ClassRowError, "RowErrors", err)
	default:
		res.Accepted = true
	}

	logger.Info("import finished",
		"accepted", res.Accepted,
		"records", len(res.Records),
		"errors", len(log.Errors()),
		"warnings", warnings,
		"corrections", len(log.Corrections()),
		"duration", time.Since(start),
	)
	return res
}

func (pl *Pipeline) selectProfile(grid RawGrid, opts Options, res *Result, log *Log) (*Profile, error) {
	if opts.Profile != "" {
		p, err := pl.registry.Get(opts.Profile)
		if err != nil {
			return nil, err
		}
		if p.Name != opts.Profile {
			log.Info(fmt.Sprintf("profile %q is not registered; using %q", opts.Profile, p.Name),
				map[string]any{"requested": opts.Profile, "profile": p.Name})
		}
		return p, nil
	}

	p, score, err := pl.registry.SelectForGrid(grid)
	if err != nil {
		return nil, err
	}
	res.AutoSelected = true
	res.ProfileScore = score
	log.Info(fmt.Sprintf("profile %q selected automatically", p.Name),
		map[string]any{"profile": p.Name, "score": score})
	return p, nil
}

func failureFrom(class EntryClass, reason string, err error) *Failure {
	um := MapError(err)
	return &Failure{
		Class:   class,
		Reason:  reason,
		Code:    um.Code,
		Message: err.Error(),
		Hint:    um.Action,
	}
}
