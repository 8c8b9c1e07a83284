// Command stash is the mb-stash CLI entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbrt/mb-stash-go/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		// Errors from a command's RunE or the root's PersistentPreRunE have
		// already been reported as a single "Error: ..." line on stderr.
		// cobra's own usage errors (unknown command or flag, wrong argument
		// count) are silenced by SilenceErrors and exit without a message.
		os.Exit(1)
	}
}
