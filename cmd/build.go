package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/rlabolle/hibppwdflt/pkg/build"
	"github.com/rlabolle/hibppwdflt/pkg/chdb"
	"github.com/rlabolle/hibppwdflt/pkg/fetch"
	"github.com/rlabolle/hibppwdflt/pkg/progress"
)

// ErrSameFile is returned when --from and --output resolve to the same
// file; buildAction rejects that combination before opening either path
// (spec §9 design note).
var ErrSameFile = errors.New("hibpguard build: --from and --output must not be the same file")

func buildCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:   "build",
		Usage:  "fetch the full NTLM range and write a CHDB file",
		Action: buildAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Usage:    "path to write the new CHDB file",
				Sources:  flagSources("build.output", "HIBPGUARD_OUTPUT"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "from",
				Usage:   "path to a previous CHDB used as the conditional-GET cache",
				Sources: flagSources("build.from", "HIBPGUARD_FROM"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "override the upstream range API base URL",
				Sources: flagSources("build.base-url", "HIBPGUARD_BASE_URL"),
			},
			&cli.IntFlag{
				Name:    "parallel",
				Usage:   "number of concurrent shard requests",
				Sources: flagSources("build.parallel", "HIBPGUARD_PARALLEL"),
				Value:   fetch.DefaultParallel,
			},
		},
	}
}

func buildAction(ctx context.Context, cmd *cli.Command) error {
	logger := zerolog.Ctx(ctx)

	if err := ensureDistinctPaths(cmd.String("from"), cmd.String("output")); err != nil {
		return err
	}

	var (
		previous *chdb.Reader
		ifMod    time.Time
	)

	if from := cmd.String("from"); from != "" {
		r, err := chdb.Open(from)
		if err != nil {
			return fmt.Errorf("hibpguard build: opening --from CHDB: %w", err)
		}

		defer r.Close()

		previous = r

		ts, err := r.Timestamp()
		if err != nil {
			return fmt.Errorf("hibpguard build: reading --from timestamp: %w", err)
		}

		ifMod = time.Unix(0, ts)
	}

	fetcher := fetch.New(fetch.Options{
		BaseURL:         cmd.String("base-url"),
		Parallel:        int(cmd.Int("parallel")),
		IfModifiedSince: ifMod,
	})

	opts := build.Options{
		OutputPath: cmd.String("output"),
		Reporter:   progress.NewTerminal(os.Stdout, 1024),
	}

	if previous != nil {
		opts.Previous = previous
	}

	pipeline, err := build.New(fetcher, opts)
	if err != nil {
		return fmt.Errorf("hibpguard build: %w", err)
	}

	logger.Info().Str("output", opts.OutputPath).Msg("hibpguard build: starting")

	_, err = pipeline.Run(ctx)

	return err
}

// ensureDistinctPaths rejects a build where --from and --output would
// resolve to the same underlying file. It compares cleaned absolute paths
// first (catches the common case even when neither file exists yet) and
// falls back to os.SameFile for the same file reached by different paths
// (symlinks, hardlinks, bind mounts) when both can be stat'd.
func ensureDistinctPaths(from, output string) error {
	if from == "" {
		return nil
	}

	absFrom, err := filepath.Abs(from)
	if err != nil {
		return fmt.Errorf("hibpguard build: resolving --from: %w", err)
	}

	absOutput, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("hibpguard build: resolving --output: %w", err)
	}

	if absFrom == absOutput {
		return fmt.Errorf("%w: %s", ErrSameFile, absOutput)
	}

	fromInfo, fromErr := os.Stat(absFrom)
	outputInfo, outputErr := os.Stat(absOutput)

	if fromErr == nil && outputErr == nil && os.SameFile(fromInfo, outputInfo) {
		return fmt.Errorf("%w: %s", ErrSameFile, absOutput)
	}

	return nil
}
