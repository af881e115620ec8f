package main

import (
	"context"
	"os/signal"
	"syscall"

	"cribsync/cmd/cribsync/commands"
	"cribsync/lib/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	telemetry.InitSlog(false)
	telemetry.SetupFromEnv(ctx, "cribsync")
	defer telemetry.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
