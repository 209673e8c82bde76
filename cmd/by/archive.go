package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/archive"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive management commands",
	}

	cmd.AddCommand(newArchiveListCmd())
	cmd.AddCommand(newArchiveAddCmd())
	cmd.AddCommand(newArchiveEnableCmd(true))
	cmd.AddCommand(newArchiveEnableCmd(false))
	return cmd
}

func newArchiveListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			archives, err := archive.ListArchives(gormDB)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(archives) == 0 {
				fmt.Fprintln(out, "No archives found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPURPOSE\tOWNER\tENABLED\tPRIVATE\tVIRT\tSCORE")
			for _, a := range archives {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%v\t%d\n",
					a.Name, a.Purpose, dash(a.Owner), a.Enabled, a.Private, a.RequireVirtualized, a.RelativeBuildScore)
			}
			w.Flush()
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newArchiveAddCmd() *cobra.Command {
	var (
		configPath string
		opts       archive.CreateOpts
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			a, err := archive.CreateArchive(gormDB, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s archive %s\n", a.Purpose, a.Name)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Purpose, "purpose", "PPA", "archive purpose (PRIMARY, PPA, PARTNER, COPY)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "archive owner")
	cmd.Flags().BoolVar(&opts.Private, "private", false, "private archive")
	cmd.Flags().BoolVar(&opts.RequireVirtualized, "virtualized", false, "builds require virtualized builders")
	cmd.Flags().IntVar(&opts.RelativeBuildScore, "relative-score", 0, "score added to every build in the archive")
	cmd.Flags().BoolVar(&opts.PermitObsoleteSeriesUploads, "permit-obsolete", false, "allow builds for obsolete series")
	return cmd
}

func newArchiveEnableCmd(enable bool) *cobra.Command {
	var configPath string

	use, short, verb := "enable <name>", "Enable an archive", "enabled"
	if !enable {
		use, short, verb = "disable <name>", "Disable an archive; its builds stay queued", "disabled"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := archive.SetEnabled(gormDB, args[0], enable); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive %s %s\n", args[0], verb)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
