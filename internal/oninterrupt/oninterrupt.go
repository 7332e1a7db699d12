// Package oninterrupt cancels a process-wide context on SIGINT so that
// in-flight downloads checkpoint their state and abort cleanly. A second
// SIGINT exits immediately.
package oninterrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

var (
	mu       sync.Mutex
	handlers []func()
)

// Context returns a context canceled on the first SIGINT. Registered
// handlers run before cancellation.
func Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		mu.Lock()
		for _, f := range handlers {
			f()
		}
		mu.Unlock()
		cancel()
		<-c
		os.Exit(130)
	}()
	return ctx
}

// Register adds a cleanup handler run on the first SIGINT.
func Register(cb func()) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, cb)
}
