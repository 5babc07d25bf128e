package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sortition/internal/config"
	"github.com/roach88/sortition/internal/draw"
	"github.com/roach88/sortition/internal/engine"
	"github.com/roach88/sortition/internal/history"
	"github.com/roach88/sortition/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Count    int
	Subset   []int
	Seed     int64
	Profile  string
	History  string
	Database string

	// Tokens allows overriding the run token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Tokens engine.TokenGenerator
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate constrained combinations",
		Long: `Generate distinct number combinations by region-weighted rejection
sampling against the layered rules.

The profile (CUE) tunes the combination shape and every threshold; omitted
fields take their defaults. A historical dataset (YAML) activates the
historical rules and the region weighting. With a database, the distribution
counter persists across runs.

Example:
  sortition generate --count 10
  sortition generate --count 5 --history draws.yaml --db counter.db
  sortition generate --count 3 --subset 4,8,15,16,23,42,47 --seed 7`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of combinations to generate")
	cmd.Flags().IntSliceVar(&opts.Subset, "subset", nil, "restrict members to this pool")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 = from the clock)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "path to CUE generation profile")
	cmd.Flags().StringVar(&opts.History, "history", "", "path to YAML historical dataset")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite checkpoint database")

	return cmd
}

// generateOutput is the JSON payload of a successful run.
type generateOutput struct {
	Token        string              `json:"token"`
	Combinations []combinationOutput `json:"combinations"`
	Stats        engine.Stats        `json:"stats"`
}

type combinationOutput struct {
	Numbers  []int  `json:"numbers"`
	Level    string `json:"level"`
	Attempts int    `json:"attempts"`
	Fallback bool   `json:"fallback,omitempty"`
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	profile, profileName, err := loadProfile(opts.Profile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load profile", err)
	}

	var draws []draw.Draw
	if opts.History != "" {
		draws, err = history.LoadDataset(opts.History, profile.PickCount, profile.DomainSize)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load historical dataset", err)
		}
		slog.Info("historical dataset loaded", "path", opts.History, "draws", len(draws))
	}

	copts := []engine.Option{engine.WithProfileName(profileName)}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		copts = append(copts, engine.WithCheckpointer(st))
	}
	if opts.Tokens != nil {
		copts = append(copts, engine.WithTokenGenerator(opts.Tokens))
	}

	co, err := engine.New(profile, draws, copts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize engine", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := co.Generate(ctx, engine.Request{
		Count:       opts.Count,
		FixedSubset: opts.Subset,
		Seed:        opts.Seed,
	})
	if err != nil {
		switch {
		case engine.IsConfigurationError(err):
			_ = formatter.Error("CONFIGURATION_INVALID", err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid request", err)
		case engine.IsExhaustionError(err):
			_ = formatter.Error("CONSTRAINT_EXHAUSTED", err.Error(), nil)
			return WrapExitError(ExitFailure, "constrained space exhausted", err)
		default:
			return WrapExitError(ExitFailure, "generation failed", err)
		}
	}

	payload := generateOutput{
		Token:        out.Token,
		Combinations: make([]combinationOutput, len(out.Results)),
		Stats:        out.Stats,
	}
	for i, res := range out.Results {
		payload.Combinations[i] = combinationOutput{
			Numbers:  res.Combination,
			Level:    res.Level.String(),
			Attempts: res.Attempts,
			Fallback: res.Fallback,
		}
	}

	if opts.Format == "json" {
		return formatter.Success(payload)
	}
	return writeGenerateText(formatter, payload)
}

func writeGenerateText(f *OutputFormatter, out generateOutput) error {
	for _, c := range out.Combinations {
		var b strings.Builder
		for i, n := range c.Numbers {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%2d", n)
		}
		if c.Fallback {
			b.WriteString("  (fallback)")
		}
		if _, err := fmt.Fprintln(f.Writer, b.String()); err != nil {
			return err
		}
	}
	f.VerboseLog("run %s: %d accepted, %d fallbacks, %d gate rejections",
		out.Token, out.Stats.Accepted, out.Stats.Fallbacks, out.Stats.GateRejections)
	return nil
}

// loadProfile resolves the profile path, falling back to defaults. The
// profile name keys the checkpoint, so two named profiles never share a
// counter.
func loadProfile(path string) (config.Profile, string, error) {
	if path == "" {
		return config.Default(), "default", nil
	}
	p, err := config.LoadFile(path)
	if err != nil {
		return config.Profile{}, "", err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return p, name, nil
}
