package api

import (
	"net/http"

	"github.com/banshee-data/fieldtrack/internal/httputil"
	"github.com/banshee-data/fieldtrack/internal/recorder"
)

func (s *Server) showRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.rec.Active())
}

func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var opts recorder.StartOptions
	if err := decodeOptional(r, &opts); err != nil {
		httputil.BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	session, err := s.rec.Start(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

func (s *Server) pauseRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.rec.Pause(); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.rec.Active())
}

func (s *Server) resumeRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.rec.Resume(); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.rec.Active())
}

// finishRecording saves unless the body says {"save": false}.
func (s *Server) finishRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	opts := recorder.FinishOptions{Save: true}
	if err := decodeOptional(r, &opts); err != nil {
		httputil.BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	session, err := s.rec.Finish(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if session == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSONOK(w, session)
}
