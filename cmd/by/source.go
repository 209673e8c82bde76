package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/archive"
	"github.com/zulandar/buildyard/internal/sourceformat"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Source publication commands",
	}

	cmd.AddCommand(newSourcePublishCmd())
	cmd.AddCommand(newSourceSupersedeCmd())
	cmd.AddCommand(newSourceVerifyCmd())
	return cmd
}

func newSourcePublishCmd() *cobra.Command {
	var (
		configPath  string
		archiveName string
		seriesName  string
		published   bool
		opts        archive.PublishOpts
	)

	cmd := &cobra.Command{
		Use:   "publish <name> <version>",
		Short: "Publish a source and queue its builds",
		Long: `Records a source publication, superseding older versions of the same
source in the archive, and creates a queued build for every architecture of
the series.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SourceName, opts.Version = args[0], args[1]
			return runSourcePublish(cmd, configPath, archiveName, seriesName, published, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&archiveName, "archive", "", "target archive (required)")
	cmd.Flags().StringVar(&seriesName, "series", "", "target distro series (required)")
	cmd.Flags().StringVar(&opts.Pocket, "pocket", "RELEASE", "pocket (RELEASE, SECURITY, UPDATES, PROPOSED, BACKPORTS)")
	cmd.Flags().StringVar(&opts.Component, "component", "main", "component")
	cmd.Flags().StringVar(&opts.Section, "section", "", "section")
	cmd.Flags().StringVar(&opts.Urgency, "urgency", "low", "upload urgency")
	cmd.Flags().BoolVar(&published, "published", false, "mark the publication PUBLISHED instead of PENDING")
	cmd.MarkFlagRequired("archive")
	cmd.MarkFlagRequired("series")
	return cmd
}

func runSourcePublish(cmd *cobra.Command, configPath, archiveName, seriesName string, published bool, opts archive.PublishOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	a, err := archive.GetArchive(gormDB, archiveName)
	if err != nil {
		return err
	}
	series, err := archive.GetDistroSeries(gormDB, seriesName)
	if err != nil {
		return err
	}
	opts.ArchiveID = a.ID
	opts.DistroSeriesID = series.ID

	pub, err := archive.PublishSource(gormDB, opts)
	if err != nil {
		return err
	}
	if published {
		if err := archive.MarkPublished(gormDB, pub.ID); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Published %s %s to %s/%s (publication %d)\n", pub.SourceName, pub.Version, a.Name, series.Name, pub.ID)

	builds, err := archive.CreateMissingBuilds(gormDB, pub.ID)
	if err != nil {
		return err
	}
	for _, b := range builds {
		fmt.Fprintf(out, "Queued build %d\n", b.ID)
	}
	if len(builds) == 0 {
		fmt.Fprintln(out, "No builds queued.")
	}
	return nil
}

func newSourceSupersedeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "supersede <publication-id>",
		Short: "Supersede a publication",
		Long:  "Marks a publication superseded. Its queued builds are retired at the next dispatch or sweep.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := archive.Supersede(gormDB, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Publication %d superseded\n", id)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSourceVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file.dsc>",
		Short: "Check a source package's files against its format",
		Long: `Parses a .dsc file and checks that the files it lists make a valid
source package for its declared Format.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSourceVerify(cmd, args[0])
		},
	}
}

func runSourceVerify(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dsc, err := sourceformat.ParseDSC(f)
	if err != nil {
		return err
	}
	problems := sourceformat.CheckFiles(filepath.Base(path), dsc.Format, dsc.Files)

	out := cmd.OutOrStdout()
	if len(problems) == 0 {
		fmt.Fprintf(out, "%s %s: format %s OK (%d files)\n", dsc.Source, dsc.Version, dsc.Format, len(dsc.Files))
		return nil
	}
	for _, p := range problems {
		fmt.Fprintln(out, p)
	}
	return fmt.Errorf("%s: %d problems", filepath.Base(path), len(problems))
}
