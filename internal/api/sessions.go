package api

import (
	"net/http"

	"github.com/banshee-data/fieldtrack/internal/geo"
	"github.com/banshee-data/fieldtrack/internal/httputil"
	"github.com/banshee-data/fieldtrack/internal/security"
	"github.com/banshee-data/fieldtrack/internal/store"
	"github.com/banshee-data/fieldtrack/internal/track"
	"github.com/banshee-data/fieldtrack/internal/units"
)

// listSessions accepts user_id, company_id, field_id and status filters
// over the local queue. source=remote lists the signed-in user's sessions
// held by the remote service instead; only company_id applies there.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	switch q.Get("source") {
	case "", "local":
	case "remote":
		sessions, err := s.rec.ListRemote(r.Context(), q.Get("company_id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, sessions)
		return
	default:
		httputil.BadRequest(w, "source must be local or remote")
		return
	}
	f := store.Filter{
		UserID:    q.Get("user_id"),
		CompanyID: q.Get("company_id"),
		FieldID:   q.Get("field_id"),
		Status:    track.Status(q.Get("status")),
	}
	switch f.Status {
	case "", track.StatusCompleted, track.StatusSynced:
	default:
		httputil.BadRequest(w, "status must be completed or synced")
		return
	}
	sessions, err := s.rec.List(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		session, err := s.rec.Session(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, session)
	case http.MethodDelete:
		if err := s.rec.Delete(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) showStops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	stops, err := s.rec.Stops(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, stops)
}

// summaryResponse adds speeds in the caller's display units.
type summaryResponse struct {
	geo.Summary
	Units     string  `json:"units"`
	MeanSpeed float64 `json:"mean_speed"`
	MaxSpeed  float64 `json:"max_speed"`
}

// showSummary accepts ?units= (mps, mph, kmph, kph, knots; default mps).
func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.MPS
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w, "units must be one of: "+units.GetValidUnitsString())
		return
	}
	summary, err := s.rec.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, summaryResponse{
		Summary:   summary,
		Units:     unit,
		MeanSpeed: units.ConvertSpeed(summary.MeanSpeedMps, unit),
		MaxSpeed:  units.ConvertSpeed(summary.MaxSpeedMps, unit),
	})
}

// importSession takes a raw GPX body; ?name= names the source file.
func (s *Server) importSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	name := security.SanitizeFilename(r.URL.Query().Get("name"), "upload.gpx")
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	session, err := s.rec.Import(r.Context(), name, body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}
