package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/sheet"
)

type checkOptions struct {
	profile     string
	sheet       string
	jsonOut     bool
	maxSize     int64
	concurrency int
	showShifts  bool
}

func newCheckCmd(global *globalOptions) *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Import roster files and report the outcome",
		Long: `Import each file through detection, correction, validation and
canonicalization. Files are processed concurrently. The command fails when
any file is rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "profile to use (default: auto-detect)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "worksheet name (default: first sheet)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	cmd.Flags().Int64Var(&opts.maxSize, "max-size", 20<<20, "maximum file size in bytes")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", core.DefaultMaxConcurrentRuns, "files processed at once")
	cmd.Flags().BoolVar(&opts.showShifts, "shifts", false, "list every shift in the text report")
	return cmd
}

func runCheck(cmd *cobra.Command, global *globalOptions, opts *checkOptions, files []string) error {
	logger := global.logger(cmd)
	reg, err := global.registry(logger)
	if err != nil {
		return err
	}
	if opts.profile != "" {
		if _, ok := reg.Lookup(opts.profile); !ok {
			return errors.WithHintf(
				errors.Wrapf(core.ErrProfileNotFound, "profile %q", opts.profile),
				"registered profiles: %s", strings.Join(reg.Names(), ", "))
		}
	}

	items := make([]core.BatchItem, 0, len(files))
	for _, f := range files {
		items = append(items, core.BatchItem{
			FileName: f,
			Profile:  opts.profile,
			Load:     sheet.Loader(f, sheet.Options{Sheet: opts.sheet, MaxSize: opts.maxSize}),
		})
	}

	pipeline := core.NewPipeline(reg, logger)
	limiter := core.NewRunLimiter(opts.concurrency, core.DefaultMaxWaitTime)
	results, err := pipeline.RunBatch(cmd.Context(), limiter, items)
	if err != nil {
		return errors.Wrap(err, "check interrupted")
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return errors.Wrap(err, "encode results")
		}
	} else {
		for i, res := range results {
			if i > 0 {
				fmt.Fprintln(out)
			}
			printReport(out, res, opts.showShifts)
		}
	}

	rejected := 0
	for _, res := range results {
		if !res.Accepted {
			rejected++
		}
	}
	if rejected > 0 {
		return errors.Newf("%d of %d files rejected", rejected, len(results))
	}
	return nil
}

// printReport writes a human readable summary of one result.
func printReport(w io.Writer, res *core.Result, showShifts bool) {
	status := "ACCEPTED"
	if !res.Accepted {
		status = "REJECTED"
	}
	fmt.Fprintf(w, "%s: %s\n", res.FileName, status)
	if res.Profile != "" {
		selected := "pinned"
		if res.AutoSelected {
			selected = fmt.Sprintf("auto-selected, score %d", res.ProfileScore)
		}
		fmt.Fprintf(w, "  profile: %s (%s)\n", res.Profile, selected)
	}
	if f := res.Failure; f != nil {
		fmt.Fprintf(w, "  failure: [%s] %s\n", f.Code, f.Message)
		if f.Hint != "" {
			fmt.Fprintf(w, "  hint: %s\n", f.Hint)
		}
	}

	s := res.Summary
	if res.Structure != nil {
		fmt.Fprintf(w, "  shifts: %d  cancelled: %d  skipped: %d  excluded: %d  coverage gaps: %d\n",
			s.Records, s.Cancelled, s.Skipped, s.ExcludedByErrors, s.CoverageGaps)
		fmt.Fprintf(w, "  workers: %d  assignments: %d", s.Workers, s.Assignments)
		if s.FirstDate != "" {
			fmt.Fprintf(w, "  period: %s to %s", s.FirstDate, s.LastDate)
		}
		fmt.Fprintln(w)
	}

	printEntries(w, "errors", res.Diagnostics.Errors)
	printEntries(w, "warnings", res.Diagnostics.Warnings)
	if groups := res.Diagnostics.CorrectionSummary; len(groups) > 0 {
		fmt.Fprintf(w, "  corrections (%d):\n", len(groups))
		for _, g := range groups {
			fmt.Fprintf(w, "    %s\n", g.Description)
		}
	}

	if showShifts {
		for _, r := range res.Records {
			gap := ""
			if r.HasCoverageGap {
				gap = "  GAP"
			}
			fmt.Fprintf(w, "    %s  %-14s %d  %s%s\n",
				r.DateKey(), r.ShiftType, r.ExpectedCount, strings.Join(r.AssignedWorkers, ", "), gap)
		}
	}

	if len(res.WorkerStats) > 0 {
		keys := make([]string, 0, len(res.WorkerStats))
		for k := range res.WorkerStats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "  worker shifts:\n")
		for _, k := range keys {
			st := res.WorkerStats[k]
			fmt.Fprintf(w, "    %-30s %3d shifts  %3d days\n", st.Name, st.TotalShifts, st.DistinctDates())
		}
	}
}

func printEntries(w io.Writer, title string, entries []core.Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s (%d):\n", title, len(entries))
	for _, e := range entries {
		if e.Row == core.NoPosition {
			fmt.Fprintf(w, "    %s\n", e.Message)
			continue
		}
		fmt.Fprintf(w, "    row %d: %s\n", e.Row+1, e.Message)
	}
}
