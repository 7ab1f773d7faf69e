package geosource

import (
	"context"
	"net/http"

	"github.com/banshee-data/fieldtrack/internal/track"
)

// Disabled is the source used when no receiver is configured. It reports
// itself unavailable, so recordings cannot start, and hands out closed
// subscriptions.
type Disabled struct{}

func (Disabled) Available() bool { return false }

func (Disabled) Subscribe() Subscription {
	fixes := make(chan track.Fix)
	errs := make(chan error)
	close(fixes)
	close(errs)
	return Subscription{ID: randomID(), Fixes: fixes, Errors: errs}
}

func (Disabled) Unsubscribe(string) {}

func (Disabled) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (Disabled) Close() error { return nil }

func (Disabled) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/gps-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("gps disabled"))
	})
}
