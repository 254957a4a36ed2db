package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/rlabolle/hibppwdflt/pkg/build"
	"github.com/rlabolle/hibppwdflt/pkg/chdb"
	"github.com/rlabolle/hibppwdflt/pkg/fetch"
	"github.com/rlabolle/hibppwdflt/pkg/watchd"
)

// defaultSchedule rebuilds every 50 minutes, matching the nanosecond-
// timestamp build cadence called out in the design notes. "*/50 * * * *"
// would instead fire at :00 and :50 of every hour (a 50/10 alternating
// cadence, not a uniform period), so the default relies on robfig/cron's
// "@every" descriptor instead of a standard 5-field step expression.
const defaultSchedule = "@every 50m"

// scheduleParser accepts both standard 5-field cron expressions and
// descriptors ("@every 50m", "@hourly", ...), so --schedule can be set to
// either form.
var scheduleParser = cron.NewParser( //nolint:gochecknoglobals
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func watchCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "rebuild the CHDB on a cron schedule and serve health/metrics",
		Action: watchAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Usage:    "path to write the CHDB file on each rebuild",
				Sources:  flagSources("watch.output", "HIBPGUARD_OUTPUT"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "cron expression controlling the rebuild cadence",
				Sources: flagSources("watch.schedule", "HIBPGUARD_SCHEDULE"),
				Value:   defaultSchedule,
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "override the upstream range API base URL",
				Sources: flagSources("watch.base-url", "HIBPGUARD_BASE_URL"),
			},
			&cli.IntFlag{
				Name:    "parallel",
				Usage:   "number of concurrent shard requests",
				Sources: flagSources("watch.parallel", "HIBPGUARD_PARALLEL"),
				Value:   fetch.DefaultParallel,
			},
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "address to serve /healthz and /metrics on",
				Sources: flagSources("watch.listen", "HIBPGUARD_LISTEN"),
				Value:   "127.0.0.1:9121",
			},
		},
	}
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	logger := zerolog.Ctx(ctx)

	schedule, err := scheduleParser.Parse(cmd.String("schedule"))
	if err != nil {
		return fmt.Errorf("hibpguard watch: parsing --schedule %q: %w", cmd.String("schedule"), err)
	}

	outputPath := cmd.String("output")

	builder := &reopeningPipeline{
		outputPath: outputPath,
		baseURL:    cmd.String("base-url"),
		parallel:   int(cmd.Int("parallel")),
	}

	daemon := watchd.New(builder, schedule, nil)

	server := &http.Server{
		Addr:              cmd.String("listen"),
		Handler:           daemon,
		ReadHeaderTimeout: 5 * time.Second,
	}

	daemon.Start(ctx)
	defer daemon.Stop()

	logger.Info().Str("listen", server.Addr).Str("schedule", cmd.String("schedule")).
		Msg("hibpguard watch: serving health and metrics")

	if err := server.ListenAndServe(); err != nil {
		return fmt.Errorf("hibpguard watch: %w", err)
	}

	return nil
}

// reopeningPipeline builds a fresh build.Pipeline on every run so each
// rebuild reopens the previous output as its own conditional-GET cache.
// That mapping stays open until the run returns, so no mmap is held
// between runs.
type reopeningPipeline struct {
	outputPath string
	baseURL    string
	parallel   int
}

func (r *reopeningPipeline) Run(ctx context.Context) (uint32, error) {
	var ifMod time.Time

	var previous *chdb.Reader

	if existing, err := chdb.Open(r.outputPath); err == nil {
		previous = existing

		defer existing.Close()

		if ts, err := existing.Timestamp(); err == nil {
			ifMod = time.Unix(0, ts)
		}
	}

	fetcher := fetch.New(fetch.Options{
		BaseURL:         r.baseURL,
		Parallel:        r.parallel,
		IfModifiedSince: ifMod,
	})

	opts := build.Options{OutputPath: r.outputPath}
	if previous != nil {
		opts.Previous = previous
	}

	pipeline, err := build.New(fetcher, opts)
	if err != nil {
		return 0, err
	}

	return pipeline.Run(ctx)
}
