package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	chroniclecmder "github.com/papercomputeco/chronicle/cmd/chronicle"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := chroniclecmder.NewChronicleCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
