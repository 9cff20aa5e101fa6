// Package server runs the callrelay HTTP and websocket listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/callrelay/internal/config"
	"github.com/BioHazard786/callrelay/internal/identity"
	"github.com/BioHazard786/callrelay/internal/rooms"
	"github.com/BioHazard786/callrelay/internal/signaling"
)

// Run serves until ctx is cancelled, then shuts the listener down and stops
// the hub. Registry and room state live only as long as this call.
func Run(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) error {
	hub := signaling.NewHub(identity.NewRegistry(), rooms.NewSet(), log)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           New(cfg, hub, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting signaling server", "addr", cfg.Addr(), "origins", cfg.Origins())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	// Websocket connections are hijacked and not tracked by Shutdown; stopping
	// the hub closes them.
	stopHub()
	<-hub.Done()
	return err
}
