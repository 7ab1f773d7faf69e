package geo

import "time"

// Point is the minimal view of a track sample needed by the geometry
// helpers.
type Point struct {
	Lat            float64
	Lng            float64
	Time           time.Time
	AccuracyMeters float64
	Speed          *float64 // metres per second, nil when the source did not report it
}

// Stop is a dwell interval: the position stayed within the stop radius of
// an anchor point for at least the minimum duration.
type Stop struct {
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// StopOptions configures DetectStops.
type StopOptions struct {
	MinDurationMinutes float64
	RadiusKm           float64
}

// DefaultStopOptions returns the standard clustering granularity: one
// minute inside a 30 m radius.
func DefaultStopOptions() StopOptions {
	return StopOptions{MinDurationMinutes: 1, RadiusKm: 0.03}
}

func (o StopOptions) withDefaults() StopOptions {
	d := DefaultStopOptions()
	if o.MinDurationMinutes <= 0 {
		o.MinDurationMinutes = d.MinDurationMinutes
	}
	if o.RadiusKm <= 0 {
		o.RadiusKm = d.RadiusKm
	}
	return o
}

// DetectStops scans points once, left to right, keeping a single anchor per
// window. A window closes only when a point lands outside the radius of the
// anchor; the anchor is never recentred while points stay inside it, so a
// slow drift that never leaves the radius stays one window. The final window
// is closed against the last point.
//
// Zero-valued options fall back to DefaultStopOptions.
func DetectStops(points []Point, opts StopOptions) []Stop {
	opts = opts.withDefaults()
	if len(points) < 2 {
		return nil
	}

	var stops []Stop
	anchor := 0
	for i := 1; i < len(points); i++ {
		a := points[anchor]
		p := points[i]
		if DistanceKm(a.Lat, a.Lng, p.Lat, p.Lng) <= opts.RadiusKm {
			continue
		}
		if s, ok := closeWindow(a, points[i-1], opts.MinDurationMinutes); ok {
			stops = append(stops, s)
		}
		anchor = i
	}

	if s, ok := closeWindow(points[anchor], points[len(points)-1], opts.MinDurationMinutes); ok {
		stops = append(stops, s)
	}
	return stops
}

func closeWindow(anchor, last Point, minMinutes float64) (Stop, bool) {
	minutes := last.Time.Sub(anchor.Time).Minutes()
	if minutes < minMinutes {
		return Stop{}, false
	}
	return Stop{
		Lat:             anchor.Lat,
		Lng:             anchor.Lng,
		StartTime:       anchor.Time,
		EndTime:         last.Time,
		DurationMinutes: minutes,
	}, true
}
