// Package api exposes the recorder over a small JSON HTTP interface for the
// on-device UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/banshee-data/fieldtrack/internal/geo"
	"github.com/banshee-data/fieldtrack/internal/httputil"
	"github.com/banshee-data/fieldtrack/internal/importer"
	"github.com/banshee-data/fieldtrack/internal/monitoring"
	"github.com/banshee-data/fieldtrack/internal/recorder"
	"github.com/banshee-data/fieldtrack/internal/store"
	"github.com/banshee-data/fieldtrack/internal/track"
	"github.com/banshee-data/fieldtrack/internal/version"
)

// maxImportBytes caps GPX uploads.
const maxImportBytes = importer.MaxFileBytes

// Recorder is the recorder surface the API drives.
type Recorder interface {
	Start(ctx context.Context, opts recorder.StartOptions) (track.Session, error)
	Pause() error
	Resume() error
	Finish(ctx context.Context, opts recorder.FinishOptions) (*track.Session, error)
	Active() recorder.Snapshot
	List(ctx context.Context, f store.Filter) ([]track.Session, error)
	ListRemote(ctx context.Context, companyID string) ([]track.Session, error)
	Session(ctx context.Context, id string) (track.Session, error)
	Delete(ctx context.Context, id string) error
	Stops(ctx context.Context, id string) ([]geo.Stop, error)
	Summary(ctx context.Context, id string) (geo.Summary, error)
	Import(ctx context.Context, name string, src io.Reader) (track.Session, error)
}

// Syncer re-pushes queued sessions on demand.
type Syncer interface {
	PushPending(ctx context.Context) (int, error)
}

type Server struct {
	rec  Recorder
	sync Syncer
}

// NewServer returns a Server over rec. sync may be nil, in which case
// POST /api/sync answers 503.
func NewServer(rec Recorder, sync Syncer) *Server {
	return &Server{rec: rec, sync: sync}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/recording", s.showRecording)
	mux.HandleFunc("/api/recording/start", s.startRecording)
	mux.HandleFunc("/api/recording/pause", s.pauseRecording)
	mux.HandleFunc("/api/recording/resume", s.resumeRecording)
	mux.HandleFunc("/api/recording/finish", s.finishRecording)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/import", s.importSession)
	mux.HandleFunc("/api/sessions/{id}", s.handleSession)
	mux.HandleFunc("/api/sessions/{id}/stops", s.showStops)
	mux.HandleFunc("/api/sessions/{id}/summary", s.showSummary)
	mux.HandleFunc("/api/sync", s.syncNow)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		parseErr   *importer.ParseError
		storageErr *recorder.StorageError
	)
	switch {
	case errors.Is(err, recorder.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, recorder.ErrUnsupportedEnvironment),
		errors.Is(err, recorder.ErrNoRemote):
		return http.StatusServiceUnavailable
	case errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, recorder.ErrNotRecording),
		errors.Is(err, recorder.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		monitoring.Logf("api error: %v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}

// decodeOptional fills v from a JSON body; an empty body leaves v as is.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) syncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if s.sync == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "remote sync not configured")
		return
	}
	n, err := s.sync.PushPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"synced": n})
}
