package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ball-rover/rover"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	rover.SyncLogger()
	if err != nil {
		os.Exit(1)
	}
}
