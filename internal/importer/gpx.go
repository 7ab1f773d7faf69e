// Package importer turns externally recorded GPX files into completed
// sessions.
package importer

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/banshee-data/fieldtrack/internal/track"
)

// NamePrefix is prepended to the name of every imported session.
const NamePrefix = "Imported: "

// uere converts HDOP to an approximate horizontal accuracy in metres.
const uere = 5.0

// MaxFileBytes caps the size of a GPX document.
const MaxFileBytes = 32 << 20

// ErrNoPoints is wrapped in a ParseError when a document holds no
// coordinates.
var ErrNoPoints = errors.New("no track, route or waypoint data")

// ParseError is returned for empty, oversized or malformed input.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Owner identifies the session being created.
type Owner struct {
	ID       string
	UserID   string
	UserName string
}

// ParseGPX reads a GPX 1.0/1.1 document from r. Track points are used when
// present, otherwise route points, otherwise waypoints. Points are stably
// sorted by time; a point without a timestamp is placed one second after
// its predecessor (or at now when it is the first). No filtering is
// applied, so DistanceKm covers every consecutive pair.
func ParseGPX(source string, r io.Reader, owner Owner, now time.Time) (track.Session, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileBytes+1))
	if err != nil {
		return track.Session{}, &ParseError{Source: source, Err: err}
	}
	if len(data) == 0 {
		return track.Session{}, &ParseError{Source: source, Err: errors.New("empty document")}
	}
	if len(data) > MaxFileBytes {
		return track.Session{}, &ParseError{Source: source, Err: fmt.Errorf("document exceeds %d bytes", MaxFileBytes)}
	}

	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return track.Session{}, &ParseError{Source: source, Err: err}
	}

	raw := pickPoints(doc)
	if len(raw) == 0 {
		return track.Session{}, &ParseError{Source: source, Err: ErrNoPoints}
	}

	points := make([]track.TrackPoint, len(raw))
	prev := now
	for i, p := range raw {
		ts := p.Timestamp
		if ts.IsZero() {
			if i > 0 {
				ts = prev.Add(time.Second)
			} else {
				ts = now
			}
		}
		prev = ts

		tp := track.TrackPoint{Lat: p.Latitude, Lng: p.Longitude, Timestamp: ts}
		if p.HorizontalDilution.NotNull() {
			tp.AccuracyMeters = p.HorizontalDilution.Value() * uere
		}
		points[i] = tp
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	return track.FromPoints(owner.ID, owner.UserID, owner.UserName, NamePrefix+displayName(doc, source), points), nil
}

func pickPoints(doc *gpx.GPX) []gpx.GPXPoint {
	var out []gpx.GPXPoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			out = append(out, seg.Points...)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, rte := range doc.Routes {
		out = append(out, rte.Points...)
	}
	if len(out) > 0 {
		return out
	}
	return append(out, doc.Waypoints...)
}

func displayName(doc *gpx.GPX, source string) string {
	if doc.Name != "" {
		return doc.Name
	}
	for _, trk := range doc.Tracks {
		if trk.Name != "" {
			return trk.Name
		}
	}
	return source
}
