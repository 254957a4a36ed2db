// Command hibpguard fetches and maintains a Compact Hash Database of NTLM
// password digests, and checks candidate passwords against one.
package main

import (
	"context"
	"log"
	"os"

	"github.com/rlabolle/hibppwdflt/cmd"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	c := cmd.New()

	if err := c.Run(context.Background(), os.Args); err != nil {
		log.Printf("error running hibpguard: %s", err)

		return 1
	}

	return 0
}
