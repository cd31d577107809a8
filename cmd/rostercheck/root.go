package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core/profiles"
	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/logging"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	profilesDir string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "rostercheck",
		Short: "Check shift roster spreadsheets",
		Long: `rostercheck reads monthly shift rosters (.xlsx, .xls, .csv), detects
their layout, applies the profile's corrections and validation rules and
prints the resulting shifts, worker statistics and diagnostics.

Examples:
  rostercheck check marzo.xlsx                 # auto-detect the profile
  rostercheck check -p strict *.xlsx           # pin a profile
  rostercheck check --json abril.csv > out.json
  rostercheck profiles list
  rostercheck profiles show legacy --format yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.profilesDir, "profiles-dir", "", "directory with extra YAML/TOML profiles")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newProfilesCmd(opts))
	return cmd
}

// logger writes diagnostics logging to the command's error stream so that
// stdout carries only the report.
func (o *globalOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logging.Setup(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
}

// registry returns the built-in profiles plus those found in --profiles-dir.
func (o *globalOptions) registry(logger *slog.Logger) (*core.Registry, error) {
	reg, err := profiles.NewRegistry()
	if err != nil {
		return nil, err
	}
	if o.profilesDir != "" {
		if _, err := profiles.LoadDir(reg, o.profilesDir, logger); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
