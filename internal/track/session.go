package track

import (
	"time"

	"github.com/banshee-data/fieldtrack/internal/geo"
)

// NewSession returns an empty session in the recording status.
func NewSession(id, userID, userName, companyID string, fieldIDs []string, start time.Time) Session {
	return Session{
		ID:        id,
		UserID:    userID,
		UserName:  userName,
		StartTime: start,
		Points:    []TrackPoint{},
		Status:    StatusRecording,
		CompanyID: companyID,
		FieldIDs:  append([]string(nil), fieldIDs...),
	}
}

// Append returns s with p appended and deltaKm added to the distance. The
// result may share the backing array of s.Points, so callers keep only the
// returned session and hand out Clone copies.
func Append(s Session, p TrackPoint, deltaKm float64) Session {
	next := s
	next.Points = append(s.Points, p)
	next.DistanceKm += deltaKm
	return next
}

// Complete seals the session: end time stamped, status completed. Empty
// name and notes leave the current values untouched.
func Complete(s Session, end time.Time, name, notes string) Session {
	next := s.Clone()
	next.EndTime = &end
	next.Status = StatusCompleted
	next.Synced = false
	next.RemoteID = ""
	if name != "" {
		next.Name = name
	}
	if notes != "" {
		next.Notes = notes
	}
	return next
}

// MarkSynced records a remote acknowledgement under remoteID. An empty
// remoteID keeps the one already recorded.
func MarkSynced(s Session, remoteID string) Session {
	next := s.Clone()
	next.Synced = true
	next.Status = StatusSynced
	if remoteID != "" {
		next.RemoteID = remoteID
	}
	return next
}

// FromPoints builds a finished session over points without filtering;
// DistanceKm is the sum over every consecutive pair.
func FromPoints(id, userID, userName, name string, points []TrackPoint) Session {
	s := Session{
		ID:       id,
		UserID:   userID,
		UserName: userName,
		Points:   append([]TrackPoint{}, points...),
		Status:   StatusCompleted,
		Name:     name,
	}
	if len(points) > 0 {
		s.StartTime = points[0].Timestamp
		end := points[len(points)-1].Timestamp
		s.EndTime = &end
	}
	s.DistanceKm = geo.PathDistanceKm(s.GeoPoints())
	return s
}
