package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sjawhar/ghost-minutes/internal/transcribe"
)

// Hooks expose process-level state the API reports on.
type Hooks struct {
	Warnings  func() []string
	Templates func() map[string]string
}

type Deps struct {
	Hub       *Hub
	Store     MeetingStore
	Processor Processor
	Grouping  transcribe.GroupThresholds
	Hooks     Hooks
}

func Handler(deps Deps) http.Handler {
	mux := http.NewServeMux()

	if deps.Hub != nil {
		registerWSRoute(mux, deps.Hub)
	}
	registerAPIRoutes(mux, deps)

	return mux
}

// Serve runs the API until ctx is cancelled, then drains open requests.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
