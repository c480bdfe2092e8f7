package sensors

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/viam-modules/viam-posegraph/posegraph"
)

const (
	// LaserName is the name given to the laser of a dataset.
	LaserName = "laser"
	// OdometerName is the name given to the odometer of a dataset.
	OdometerName = "odometer"

	maxLineBytes = 16 * 1024 * 1024
)

// record is one line of a dataset file. Odometry lines carry either x/y/theta in metres and
// radians, or latitude/longitude/heading in degrees.
type record struct {
	Sensor string    `json:"sensor"`
	Time   time.Time `json:"time"`

	Ranges   []float64 `json:"ranges"`
	RangeMin float64   `json:"range_min"`
	RangeMax float64   `json:"range_max"`
	AngleMin float64   `json:"angle_min"`
	AngleMax float64   `json:"angle_max"`

	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta *float64 `json:"theta"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Heading   *float64 `json:"heading"`
}

// Dataset holds every reading of a recorded session, split per sensor and kept in file order.
type Dataset struct {
	Laser    []TimedLaserReadingResponse
	Odometry []TimedOdometerReadingResponse
}

// LoadDataset reads a JSON lines dataset from path.
func LoadDataset(path string) (*Dataset, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dataset %q", path)
	}
	defer f.Close()

	ds, err := ReadDataset(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dataset %q", path)
	}
	return ds, nil
}

// ReadDataset parses a JSON lines dataset. Blank lines and lines starting with '#' are skipped.
func ReadDataset(r io.Reader) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	ds := &Dataset{}
	var projector *GeodeticProjector
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		if rec.Time.IsZero() {
			return nil, errors.Errorf("line %d: missing time", lineNum)
		}

		switch rec.Sensor {
		case LaserName:
			ds.Laser = append(ds.Laser, TimedLaserReadingResponse{
				Scan: posegraph.LaserScan{
					Ranges:   rec.Ranges,
					RangeMin: rec.RangeMin,
					RangeMax: rec.RangeMax,
					AngleMin: rec.AngleMin,
					AngleMax: rec.AngleMax,
				},
				ReadingTime: rec.Time,
				Replay:      true,
			})
		case OdometerName:
			reading, err := odometryFromRecord(rec, &projector)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNum)
			}
			ds.Odometry = append(ds.Odometry, reading)
		default:
			return nil, errors.Errorf("line %d: unknown sensor %q", lineNum, rec.Sensor)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}

// odometryFromRecord converts an odometry line, creating the projector from the first geodetic fix.
func odometryFromRecord(rec record, projector **GeodeticProjector) (TimedOdometerReadingResponse, error) {
	resp := TimedOdometerReadingResponse{ReadingTime: rec.Time, Replay: true}
	switch {
	case rec.X != nil && rec.Y != nil && rec.Theta != nil:
		resp.Position = r2.Point{X: *rec.X, Y: *rec.Y}
		resp.Heading = *rec.Theta
	case rec.Latitude != nil && rec.Longitude != nil && rec.Heading != nil:
		if *projector == nil {
			*projector = NewGeodeticProjector(*rec.Latitude, *rec.Longitude)
		}
		resp.Position = (*projector).Project(*rec.Latitude, *rec.Longitude)
		resp.Heading = HeadingToAngle(*rec.Heading)
	default:
		return TimedOdometerReadingResponse{}, errors.New("odometry needs x, y and theta or latitude, longitude and heading")
	}
	return resp, nil
}

// NewLaser returns a replay laser over the dataset's scans.
func (ds *Dataset) NewLaser(dataFrequencyHz int) *ReplayLaser {
	return NewReplayLaser(LaserName, dataFrequencyHz, ds.Laser)
}

// NewOdometer returns a replay odometer over the dataset's odometry.
func (ds *Dataset) NewOdometer(dataFrequencyHz int) *ReplayOdometer {
	return NewReplayOdometer(OdometerName, dataFrequencyHz, ds.Odometry)
}
