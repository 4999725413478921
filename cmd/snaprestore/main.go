package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"snaprestore.io/snaprestore-cli/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			stop()
			os.Exit(exitErr.Code)
		}
		stop()
		os.Exit(3) // CLI/config error
	}
}
