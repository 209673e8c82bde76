package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/builder"
	"gorm.io/gorm"
)

func newDispatchCmd() *cobra.Command {
	var (
		configPath  string
		builderName string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Claim the next build for a builder",
		Long: `Selects the best candidate for the builder and claims it: the build
becomes BUILDING on the builder with a fresh dispatch cookie. Stale builds
met while selecting are retired. --dry-run selects without claiming; stale
builds it meets are still retired.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, configPath, builderName, dryRun)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&builderName, "builder", "", "builder name (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the candidate without claiming it (stale builds are still retired)")
	cmd.MarkFlagRequired("builder")
	return cmd
}

func runDispatch(cmd *cobra.Command, configPath, builderName string, dryRun bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	policy := buildqueue.PolicyFromConfig(cfg.Dispatch)

	b, err := builder.GetByName(gormDB, builderName)
	if err != nil {
		return err
	}

	var c *buildqueue.Candidate
	if dryRun {
		// Retirements met while selecting commit together.
		err = gormDB.Transaction(func(tx *gorm.DB) error {
			var findErr error
			c, findErr = buildqueue.FindCandidate(tx, b, policy)
			return findErr
		})
	} else {
		c, err = buildqueue.AcquireCandidate(gormDB, b.ID, policy)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c == nil {
		fmt.Fprintf(out, "No candidate for %s.\n", b.Name)
		return nil
	}

	arch := ""
	if c.Build.DistroArchSeries != nil {
		arch = c.Build.DistroArchSeries.ArchTag
	}
	archiveName := ""
	if c.Build.Archive != nil {
		archiveName = c.Build.Archive.Name
	}
	verb := "Dispatched"
	if dryRun {
		verb = "Would dispatch"
	}
	fmt.Fprintf(out, "%s build %d (%s %s, %s/%s, score %d) to %s\n",
		verb, c.Build.ID, c.Build.SourceName, c.Build.SourceVersion, archiveName, arch, c.Queue.LastScore, b.Name)
	if !dryRun {
		fmt.Fprintf(out, "Cookie: %s\n", c.Build.DispatchCookie)
	}
	return nil
}
