package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gardener_service/internal/app/logging"
)

func main() {
	logging.Setup(os.Stdout, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		logging.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
