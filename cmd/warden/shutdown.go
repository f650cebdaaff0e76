package main

import (
	"fmt"
	"io"
	"os"
	"time"
)

var (
	shutdownTimeout = 30 * time.Second
	shutdownExit    = os.Exit
)

// shutdown runs the ordered teardown with a hard deadline: stop intake of
// new work, cancel running loops, deny open approvals, close the store.
func shutdown(deps *runtimeDeps, stderr io.Writer) {
	done := make(chan struct{})
	timer := time.AfterFunc(shutdownTimeout, func() {
		fmt.Fprintln(stderr, "shutdown timeout, forcing exit")
		shutdownExit(1)
	})
	go func() {
		shutdownRun(deps)
		close(done)
	}()
	<-done
	timer.Stop()
	fmt.Fprintln(stderr, "shutdown complete")
}

func shutdownRun(deps *runtimeDeps) {
	deps.loop.Shutdown()
	deps.approvals.Shutdown()
	deps.bus.ClearAllSessionSubscribers()
	_ = deps.sqlStore.Close()
}

func watchSecondSignal(sigCh <-chan os.Signal, stderr io.Writer) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(stderr, "forced exit")
			shutdownExit(1)
		case <-done:
		}
	}()
	return func() { close(done) }
}
