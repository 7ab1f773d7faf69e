// Package track defines the recorded-track data model and the pure
// transitions applied to it while recording.
package track

import (
	"time"

	"github.com/banshee-data/fieldtrack/internal/geo"
)

// Status is the persisted lifecycle status of a session. Paused is a
// recorder state and is never persisted.
type Status string

const (
	StatusRecording Status = "recording"
	StatusCompleted Status = "completed"
	StatusSynced    Status = "synced"
)

// Fix is one raw geolocation sample as delivered by the source.
type Fix struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Timestamp      time.Time `json:"timestamp"`
	AccuracyMeters float64   `json:"accuracy_m"`
	Speed          *float64  `json:"speed_mps,omitempty"`
	Heading        *float64  `json:"heading_deg,omitempty"`
}

// TrackPoint is an accepted fix. Points are immutable once created.
type TrackPoint struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Timestamp      time.Time `json:"timestamp"`
	AccuracyMeters float64   `json:"accuracy_m"`
	Speed          *float64  `json:"speed_mps,omitempty"`
	Heading        *float64  `json:"heading_deg,omitempty"`
}

// Point converts the fix into the track point it would become on
// acceptance.
func (f Fix) Point() TrackPoint {
	return TrackPoint(f)
}

// Geo returns the geometry view of the point.
func (p TrackPoint) Geo() geo.Point {
	return geo.Point{
		Lat:            p.Lat,
		Lng:            p.Lng,
		Time:           p.Timestamp,
		AccuracyMeters: p.AccuracyMeters,
		Speed:          p.Speed,
	}
}

// Session is a recorded route.
type Session struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	UserName   string       `json:"user_name"`
	StartTime  time.Time    `json:"start_time"`
	EndTime    *time.Time   `json:"end_time,omitempty"`
	Points     []TrackPoint `json:"points"`
	DistanceKm float64      `json:"distance_km"`
	Status     Status       `json:"status"`
	CompanyID  string       `json:"company_id,omitempty"`
	FieldIDs   []string     `json:"field_ids,omitempty"`
	Synced     bool         `json:"synced"`
	// RemoteID is the id the remote service assigned on sync.
	RemoteID string `json:"remote_id,omitempty"`
	Name       string       `json:"name,omitempty"`
	Notes      string       `json:"notes,omitempty"`
}

// GeoPoints returns the geometry view of every point in the session.
func (s Session) GeoPoints() []geo.Point {
	out := make([]geo.Point, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Geo()
	}
	return out
}

// Anchor returns the most recently accepted point.
func (s Session) Anchor() (TrackPoint, bool) {
	if len(s.Points) == 0 {
		return TrackPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Clone returns a deep copy so callers cannot alias the recorder's
// in-memory session.
func (s Session) Clone() Session {
	c := s
	if s.Points != nil {
		c.Points = append([]TrackPoint(nil), s.Points...)
	}
	if s.FieldIDs != nil {
		c.FieldIDs = append([]string(nil), s.FieldIDs...)
	}
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	return c
}
