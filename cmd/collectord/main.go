package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"collectord/internal/cli"
)

func main() {
	// Ctrl+C / SIGTERM cancel the running command: serve shuts down, stream
	// reports what it sent, monitor deregisters.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "collectord:", err)
		os.Exit(1)
	}
}
