package geo

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a track for reporting.
type Summary struct {
	PointCount         int           `json:"point_count"`
	Duration           time.Duration `json:"duration_ns"`
	DistanceKm         float64       `json:"distance_km"`
	MeanAccuracyMeters float64       `json:"mean_accuracy_m"`
	MeanSpeedMps       float64       `json:"mean_speed_mps"`
	MaxSpeedMps        float64       `json:"max_speed_mps"`
	Stops              []Stop        `json:"stops"`
}

// PathDistanceKm sums DistanceKm over every consecutive pair of points.
func PathDistanceKm(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		total += DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng)
	}
	return total
}

// Summarize computes the summary of points. Speeds reported by the source
// are preferred; when none are present the mean speed is derived from
// distance over duration.
func Summarize(points []Point, opts StopOptions) Summary {
	s := Summary{PointCount: len(points)}
	if len(points) == 0 {
		return s
	}

	s.Duration = points[len(points)-1].Time.Sub(points[0].Time)
	s.DistanceKm = PathDistanceKm(points)
	s.Stops = DetectStops(points, opts)

	accuracies := make([]float64, 0, len(points))
	var speeds []float64
	for _, p := range points {
		accuracies = append(accuracies, p.AccuracyMeters)
		if p.Speed != nil {
			speeds = append(speeds, *p.Speed)
		}
	}
	s.MeanAccuracyMeters = stat.Mean(accuracies, nil)

	switch {
	case len(speeds) > 0:
		s.MeanSpeedMps = stat.Mean(speeds, nil)
		s.MaxSpeedMps = floats.Max(speeds)
	case s.Duration > 0:
		s.MeanSpeedMps = s.DistanceKm * 1000 / s.Duration.Seconds()
	}
	return s
}
