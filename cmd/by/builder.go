package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/builder"
	"gorm.io/gorm"
)

func newBuilderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "builder",
		Short: "Builder management commands",
	}

	cmd.AddCommand(newBuilderListCmd())
	cmd.AddCommand(newBuilderAddCmd())
	cmd.AddCommand(newBuilderEnableCmd())
	cmd.AddCommand(newBuilderDisableCmd())
	cmd.AddCommand(newBuilderManualCmd())
	return cmd
}

func newBuilderListCmd() *cobra.Command {
	var (
		configPath string
		processor  string
		okOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List builders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuilderList(cmd, configPath, builder.ListOpts{Processor: processor, OKOnly: okOnly})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&processor, "processor", "", "filter by processor")
	cmd.Flags().BoolVar(&okOnly, "ok", false, "only list builders that are OK")
	return cmd
}

func runBuilderList(cmd *cobra.Command, configPath string, opts builder.ListOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	builders, err := builder.List(gormDB, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(builders) == 0 {
		fmt.Fprintln(out, "No builders found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPROCESSOR\tVIRT\tOK\tMANUAL\tFAILURES\tNOTES")
	for _, b := range builders {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%v\t%v\t%d\t%s\n",
			b.ID, b.Name, b.Processor, b.Virtualized, b.BuilderOK, b.Manual, b.FailureCount, dash(truncate(b.FailNotes, 40)))
	}
	w.Flush()
	return nil
}

func newBuilderAddCmd() *cobra.Command {
	var (
		configPath string
		opts       builder.AddOpts
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a builder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			b, err := builder.Add(gormDB, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added builder %s (id=%d, processor=%s)\n", b.Name, b.ID, b.Processor)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.Processor, "processor", "", "processor family the builder runs (required)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "builder URL")
	cmd.Flags().BoolVar(&opts.Virtualized, "virtualized", false, "builder is a virtual machine")
	cmd.Flags().BoolVar(&opts.Manual, "manual", false, "exclude the builder from automatic dispatch")
	cmd.MarkFlagRequired("processor")
	return cmd
}

func newBuilderEnableCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "enable <name>",
		Short: "Mark a builder OK and clear its failure count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuilder(configPath, args[0], func(gormDB *gorm.DB, id uint) error {
				if err := builder.SetOK(gormDB, id, true, ""); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Builder %s enabled\n", args[0])
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newBuilderDisableCmd() *cobra.Command {
	var (
		configPath string
		note       string
	)

	cmd := &cobra.Command{
		Use:   "disable <name>",
		Short: "Take a builder out of dispatch",
		Long:  "Marks a builder as not OK. Its running job, if any, keeps running until reported.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuilder(configPath, args[0], func(gormDB *gorm.DB, id uint) error {
				if err := builder.SetOK(gormDB, id, false, note); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Builder %s disabled\n", args[0])
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&note, "note", "", "reason for disabling")
	return cmd
}

func newBuilderManualCmd() *cobra.Command {
	var (
		configPath string
		off        bool
	)

	cmd := &cobra.Command{
		Use:   "manual <name>",
		Short: "Put a builder in manual mode",
		Long:  "Manual builders are skipped by automatic dispatch. Use --off to return the builder to automatic mode.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuilder(configPath, args[0], func(gormDB *gorm.DB, id uint) error {
				if err := builder.SetManual(gormDB, id, !off); err != nil {
					return err
				}
				mode := "manual"
				if off {
					mode = "automatic"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Builder %s is now %s\n", args[0], mode)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&off, "off", false, "return the builder to automatic mode")
	return cmd
}

// withBuilder resolves a builder name and runs fn with its ID.
func withBuilder(configPath, name string, fn func(*gorm.DB, uint) error) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	b, err := builder.GetByName(gormDB, name)
	if err != nil {
		return err
	}
	return fn(gormDB, b.ID)
}
