package track

import "github.com/banshee-data/fieldtrack/internal/geo"

// Decision reports what the filter did with a fix.
type Decision int

const (
	Accepted Decision = iota
	RejectedAccuracy
	RejectedDistance
	RejectedOutOfOrder
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case RejectedAccuracy:
		return "rejected_accuracy"
	case RejectedDistance:
		return "rejected_distance"
	case RejectedOutOfOrder:
		return "rejected_out_of_order"
	default:
		return "unknown"
	}
}

const (
	DefaultMaxAccuracyMeters = 50.0
	DefaultMinDistanceKm     = 0.010
)

// Filter decides which fixes become part of a session. It trades path
// fidelity for bounded growth: DistanceKm measures the path between kept
// anchors and undercounts motion below MinDistanceKm.
type Filter struct {
	MaxAccuracyMeters float64
	MinDistanceKm     float64
}

// DefaultFilter returns the 50 m accuracy / 10 m displacement filter.
func DefaultFilter() Filter {
	return Filter{MaxAccuracyMeters: DefaultMaxAccuracyMeters, MinDistanceKm: DefaultMinDistanceKm}
}

// Apply returns the session after considering f. Rejected fixes leave the
// session unchanged and are not stored anywhere. A fix older than the
// anchor is rejected so points stay in ascending timestamp order.
func (flt Filter) Apply(s Session, f Fix) (Session, Decision) {
	if f.AccuracyMeters > flt.MaxAccuracyMeters {
		return s, RejectedAccuracy
	}
	anchor, ok := s.Anchor()
	if !ok {
		return Append(s, f.Point(), 0), Accepted
	}
	if f.Timestamp.Before(anchor.Timestamp) {
		return s, RejectedOutOfOrder
	}
	d := geo.DistanceKm(anchor.Lat, anchor.Lng, f.Lat, f.Lng)
	if d <= flt.MinDistanceKm {
		return s, RejectedDistance
	}
	return Append(s, f.Point(), d), Accepted
}
