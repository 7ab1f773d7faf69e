package geosource

import (
	"errors"
	"fmt"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/banshee-data/fieldtrack/internal/track"
	"github.com/banshee-data/fieldtrack/internal/units"
)

// uere is the user equivalent range error used to turn HDOP into an
// accuracy radius in metres.
const uere = 5.0

// ErrNoFix is reported when the receiver says it has lost its position.
var ErrNoFix = errors.New("gps receiver has no fix")

// decoder turns NMEA sentences into fixes. RMC carries position, time,
// speed and course; GGA carries the HDOP used for accuracy. A fix is only
// produced once an HDOP has been seen.
type decoder struct {
	now     func() time.Time
	hdop    float64
	hasHDOP bool
	noFix   bool
}

// decode returns a fix, an error to report, or neither for sentences that
// carry nothing new.
func (d *decoder) decode(line string) (*track.Fix, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "!") {
		return nil, nil
	}
	base, err := nmea.ParseSentence(line)
	if err != nil {
		return nil, fmt.Errorf("bad nmea sentence: %w", err)
	}
	switch base.Type {
	case nmea.TypeRMC:
		// Receivers leave the position fields empty while invalid, so the
		// status is checked before the full parse.
		if len(base.Fields) > 1 && base.Fields[1] != nmea.ValidRMC {
			return nil, d.lost()
		}
	case nmea.TypeGGA:
		if len(base.Fields) > 5 && base.Fields[5] == nmea.Invalid {
			d.hasHDOP = false
			return nil, d.lost()
		}
	default:
		return nil, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("bad %s sentence: %w", base.Type, err)
	}

	switch m := sentence.(type) {
	case nmea.GGA:
		d.hdop, d.hasHDOP = m.HDOP, true
		return nil, nil

	case nmea.RMC:
		d.noFix = false
		if !d.hasHDOP {
			return nil, nil
		}
		speed := units.KnotsToMPS(m.Speed)
		course := m.Course
		return &track.Fix{
			Lat:            m.Latitude,
			Lng:            m.Longitude,
			Timestamp:      d.timestamp(m.Date, m.Time),
			AccuracyMeters: d.hdop * uere,
			Speed:          &speed,
			Heading:        &course,
		}, nil
	}
	return nil, nil
}

// lost reports ErrNoFix once per outage.
func (d *decoder) lost() error {
	if d.noFix {
		return nil
	}
	d.noFix = true
	return ErrNoFix
}

func (d *decoder) timestamp(date nmea.Date, tm nmea.Time) time.Time {
	if !date.Valid || !tm.Valid {
		return d.now().UTC()
	}
	return time.Date(2000+date.YY, time.Month(date.MM), date.DD,
		tm.Hour, tm.Minute, tm.Second, tm.Millisecond*int(time.Millisecond), time.UTC)
}
