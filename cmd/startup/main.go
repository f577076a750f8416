package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"finetune-orchestrator/api/cli"
	"finetune-orchestrator/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, config.Load()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
