// Package cmd assembles the hibpguard CLI: one root command with build,
// watch, and check subcommands, following the teacher's flagSources /
// zerolog-bootstrap shape (see cmd.go and serve.go in the teacher module).
package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/json"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// Version is set via -ldflags at build time.
//
//nolint:gochecknoglobals
var Version = "dev"

type flagSourcesFn func(configFileKey, envVar string) cli.ValueSourceChain

// New builds the root hibpguard command.
func New() *cli.Command {
	var configPath string

	flagSources := func(configFileKey, envVar string) cli.ValueSourceChain {
		return cli.NewValueSourceChain(
			toml.TOML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			yaml.YAML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			json.JSON(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			cli.EnvVar(envVar),
		)
	}

	return &cli.Command{
		Name:    "hibpguard",
		Usage:   "build and serve a compact NTLM password hash database",
		Version: Version,
		Before:  bootstrapLogger,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level (trace, debug, info, warn, error)",
				Sources: flagSources("log.level", "HIBPGUARD_LOG_LEVEL"),
				Value:   "info",
				Validator: func(lvl string) error {
					_, err := zerolog.ParseLevel(lvl)

					return err
				},
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to the configuration file (toml, yaml, json)",
				Sources:     cli.EnvVars("HIBPGUARD_CONFIG_FILE"),
				Destination: &configPath,
			},
		},
		Commands: []*cli.Command{
			buildCommand(flagSources),
			watchCommand(flagSources),
			checkCommand(flagSources),
		},
	}
}

func bootstrapLogger(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	logLvl := cmd.String("log-level")

	lvl, err := zerolog.ParseLevel(logLvl)
	if err != nil {
		return ctx, err
	}

	var output io.Writer = os.Stdout

	if term.IsTerminal(int(os.Stdout.Fd())) {
		output = zerolog.ConsoleWriter{Out: colorable.NewColorableStdout(), TimeFormat: time.RFC3339}
	}

	ctx = zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Logger().
		WithContext(ctx)

	zerolog.Ctx(ctx).Info().Str("log_level", lvl.String()).Msg("logger created")

	return ctx, nil
}
