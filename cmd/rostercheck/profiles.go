package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cristian-data-science/kpi-punta-de-lobos-sub001/internal/core"
)

func newProfilesCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect the registered profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := global.registry(global.logger(cmd))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tSTRICT\tAUTOCORRECT\tDESCRIPTION")
			for _, p := range reg.All() {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%s\n",
					p.Name, p.Version, p.Validation.StrictMode, p.Validation.AutoCorrection, p.Description)
			}
			return tw.Flush()
		},
	})

	var format string
	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := global.registry(global.logger(cmd))
			if err != nil {
				return err
			}
			p, ok := reg.Lookup(args[0])
			if !ok {
				return errors.Wrapf(core.ErrProfileNotFound, "profile %q", args[0])
			}
			data, err := encodeProfile(p, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml, toml or json")
	cmd.AddCommand(show)

	return cmd
}

func encodeProfile(p *core.Profile, format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(p)
	case "toml":
		return toml.Marshal(p)
	case "json":
		data, err := json.MarshalIndent(p, "", "  ")
		return append(data, '\n'), err
	default:
		return nil, errors.Newf("unknown format %q", format)
	}
}
