package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/rlabolle/hibppwdflt/pkg/chdb"
	"github.com/rlabolle/hibppwdflt/pkg/ntlm"
)

// ErrPasswordArgRequired is returned when `check` is invoked without a
// password argument.
var ErrPasswordArgRequired = errors.New("hibpguard check: a password argument is required")

func checkCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "look up a password's NTLM digest against a CHDB file",
		ArgsUsage: "<password>",
		Action:    checkAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Usage:    "path to the CHDB file",
				Sources:  flagSources("check.db", "HIBPGUARD_DB"),
				Required: true,
			},
		},
	}
}

func checkAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return ErrPasswordArgRequired
	}

	r, err := chdb.Open(cmd.String("db"))
	if err != nil {
		return fmt.Errorf("hibpguard check: opening %s: %w", cmd.String("db"), err)
	}

	defer r.Close()

	digest := ntlm.Digest([]byte(cmd.Args().First()))

	found, err := r.Contains(digest)
	if err != nil {
		return fmt.Errorf("hibpguard check: %w", err)
	}

	if found {
		fmt.Println("FOUND: this password appears in the compromised-password database")
	} else {
		fmt.Println("not found")
	}

	return nil
}
