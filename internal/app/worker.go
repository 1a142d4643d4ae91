package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gridrun/server/internal/hub"
	"gridrun/server/internal/telemetry"
	"gridrun/server/logging"
)

// shutdownGrace bounds listener drain and router flush once the run context
// ends.
const shutdownGrace = 5 * time.Second

// loopWorker drives the hub's frame loop, then tears the hub down and
// flushes the logging router once the loop stops.
type loopWorker struct {
	hub    *hub.Hub
	router *logging.Router
	log    telemetry.Logger
}

func (w *loopWorker) Start(ctx context.Context) error {
	err := w.hub.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.hub.Close()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if cerr := w.router.Close(closeCtx); cerr != nil {
		w.log.Printf("closing logging router: %v", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

// httpWorker serves the hub's HTTP surface until the run context ends.
type httpWorker struct {
	addr    string
	handler http.Handler
	log     telemetry.Logger
}

func (w *httpWorker) Start(ctx context.Context) error {
	srv := &http.Server{Addr: w.addr, Handler: w.handler}

	// done signals that Start is returning on its own, so the watcher
	// goroutine must not outlive it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				w.log.Printf("http shutdown: %v", err)
			}
		case <-done:
		}
	}()

	w.log.Printf("listening on %s", w.addr)
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http on %s: %w", w.addr, err)
	}
	return nil
}
