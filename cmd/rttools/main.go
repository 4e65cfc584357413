package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rttools/rttools/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := cli.NewRTToolsCommand()
	if err := command.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
