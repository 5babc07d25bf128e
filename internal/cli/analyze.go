package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sortition/internal/history"
	"github.com/roach88/sortition/internal/region"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	Profile string
	History string
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the historical region distribution",
		Long: `Partition the number domain into regions and report each region's share
of historical draw minima. These ratios are the targets the generator's
region weighting and acceptance gate steer toward.

Example:
  sortition analyze --history draws.yaml
  sortition analyze --history draws.yaml --profile lotto.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Profile, "profile", "", "path to CUE generation profile")
	cmd.Flags().StringVar(&opts.History, "history", "", "path to YAML historical dataset (required)")
	_ = cmd.MarkFlagRequired("history")

	return cmd
}

func runAnalyze(opts *AnalyzeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	profile, _, err := loadProfile(opts.Profile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load profile", err)
	}

	draws, err := history.LoadDataset(opts.History, profile.PickCount, profile.DomainSize)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load historical dataset", err)
	}

	dist, err := region.Analyze(draws, profile.DomainSize, profile.RegionWidth)
	if err != nil {
		return WrapExitError(ExitCommandError, "region analysis failed", err)
	}
	summary := dist.Summary()

	if opts.Format == "json" {
		return formatter.Success(summary)
	}
	return writeAnalyzeText(formatter, summary)
}

func writeAnalyzeText(f *OutputFormatter, s region.Summary) error {
	fmt.Fprintf(f.Writer, "domain 1-%d, region width %d, %d historical draws\n\n",
		s.DomainSize, s.Width, s.TotalDraws)
	fmt.Fprintf(f.Writer, "%-8s %-9s %7s %8s %5s\n", "region", "range", "draws", "ratio", "rank")
	for _, r := range s.Regions {
		fmt.Fprintf(f.Writer, "%-8d %3d-%-5d %7d %8.4f %5d\n",
			r.Index, r.Lo, r.Hi, r.Count, r.Ratio, r.Rank)
	}
	return nil
}
