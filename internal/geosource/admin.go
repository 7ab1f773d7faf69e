package geosource

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes serves a server-sent event stream of decoded fixes and
// receiver errors at /debug/gps-tail.
func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("gps-tail", "live stream of decoded GPS fixes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		sub := m.Subscribe()
		defer m.Unsubscribe(sub.ID)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case fix, ok := <-sub.Fixes:
				if !ok {
					return
				}
				payload, err := json.Marshal(fix)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: fix\ndata: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case err, ok := <-sub.Errors:
				if !ok {
					return
				}
				if _, werr := fmt.Fprintf(w, "event: error\ndata: %q\n\n", err.Error()); werr != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
