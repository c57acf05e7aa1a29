package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/devboard/canharness/cmd/canharness/cmd"
	"go.uber.org/zap"

	// Init adapters
	_ "github.com/devboard/canharness/adapter"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // Setup interrupt handler for ctrl-c
	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt)
	go func() {
		s := <-quitChan
		zap.L().Info("exiting", zap.Stringer("signal", s))
		cancel()
		// Failsafe if there is deadlocks
		<-time.After(15 * time.Second)
		zap.L().Fatal("took to long to shutdown, forcefully exiting")
	}()
	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
