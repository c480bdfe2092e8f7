// Package testhelper provides replayed sensor data for tests which don't depend on viamposegraph.
package testhelper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/viam-modules/viam-posegraph/posegraph"
	s "github.com/viam-modules/viam-posegraph/sensors"
)

const (
	// StepMetres is how far the robot drives along +X between two odometry readings.
	StepMetres = 0.6
	// Steps is the number of moves in a straight line drive.
	Steps = 6

	laserLag = 100 * time.Millisecond
)

// Start is the reading time of the first odometry reading.
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Scan is a small fan of returns so every node carries a non-empty cloud.
func Scan() posegraph.LaserScan {
	return posegraph.LaserScan{
		Ranges:   []float64{1, 1.5, 2, 2.5, 2, 1.5, 1},
		RangeMin: 0.1,
		RangeMax: 10,
		AngleMin: -1,
		AngleMax: 1,
	}
}

// StraightLine drives the robot along +X with one odometry reading per second, each followed
// by a scan.
func StraightLine(laserDataFrequencyHz, odometerDataFrequencyHz int) (*s.ReplayLaser, *s.ReplayOdometer) {
	var laser []s.TimedLaserReadingResponse
	var odometry []s.TimedOdometerReadingResponse
	for i := 0; i <= Steps; i++ {
		t := Start.Add(time.Duration(i) * time.Second)
		odometry = append(odometry, s.TimedOdometerReadingResponse{
			Position:    r2.Point{X: float64(i) * StepMetres},
			ReadingTime: t,
			Replay:      true,
		})
		laser = append(laser, s.TimedLaserReadingResponse{
			Scan:        Scan(),
			ReadingTime: t.Add(laserLag),
			Replay:      true,
		})
	}
	return s.NewReplayLaser(s.LaserName, laserDataFrequencyHz, laser),
		s.NewReplayOdometer(s.OdometerName, odometerDataFrequencyHz, odometry)
}

// WriteStraightLineDataset writes StraightLine as a JSON lines dataset in dir and returns its path.
func WriteStraightLineDataset(t *testing.T, dir string) string {
	t.Helper()
	scan := Scan()
	ranges := make([]string, 0, len(scan.Ranges))
	for _, r := range scan.Ranges {
		ranges = append(ranges, fmt.Sprint(r))
	}

	var b strings.Builder
	for i := 0; i <= Steps; i++ {
		ts := Start.Add(time.Duration(i) * time.Second)
		fmt.Fprintf(&b, `{"sensor":%q,"time":%q,"x":%v,"y":0,"theta":0}`+"\n",
			s.OdometerName, ts.Format(time.RFC3339Nano), float64(i)*StepMetres)
		fmt.Fprintf(&b, `{"sensor":%q,"time":%q,"ranges":[%s],"range_min":%v,"range_max":%v,"angle_min":%v,"angle_max":%v}`+"\n",
			s.LaserName, ts.Add(laserLag).Format(time.RFC3339Nano), strings.Join(ranges, ","),
			scan.RangeMin, scan.RangeMax, scan.AngleMin, scan.AngleMax)
	}

	path := filepath.Join(dir, "dataset.jsonl")
	test.That(t, os.WriteFile(path, []byte(b.String()), 0o600), test.ShouldBeNil)
	return path
}
