package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sajidur78/xedbg/internal/config"
)

func newModulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "Lists the images loaded on the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			t, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			mods, err := t.modules.Enumerate(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBASE\tSIZE\tFLAGS")
			for _, m := range mods {
				fmt.Fprintf(tw, "%s\t0x%08X\t0x%08X\t%s\n", m.Name, m.Base, m.Size, strings.Join(m.Flags, ","))
			}
			return tw.Flush()
		},
	}
}

func newConfigCmd() *cobra.Command {
	var overwrite bool
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Client config helpers",
	}
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Writes a sample TOML config, or prints it when no path is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprint(cmd.OutOrStdout(), config.Template())
				return nil
			}
			if err := config.WriteTemplate(args[0], overwrite); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(initCmd)
	return configCmd
}
