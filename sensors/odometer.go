package sensors

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	geo "github.com/kellydunn/golang-geo"

	"github.com/viam-modules/viam-posegraph/pose2d"
)

// TimedOdometer describes an odometer that reports the time each reading is from.
type TimedOdometer interface {
	TimedSensor
	TimedOdometerReading(ctx context.Context) (TimedOdometerReadingResponse, error)
}

// TimedOdometerReadingResponse is a planar odometry pose (metres, radians counter-clockwise from +X)
// with its time and whether it came from a replayed dataset.
type TimedOdometerReadingResponse struct {
	Position    r2.Point
	Heading     float64
	ReadingTime time.Time
	Replay      bool
}

// ReplayOdometer serves the odometry readings of a dataset in file order.
type ReplayOdometer struct {
	name            string
	dataFrequencyHz int

	mu       sync.Mutex
	cursor   cursor
	readings []TimedOdometerReadingResponse
}

// NewReplayOdometer returns an odometer serving readings in order.
func NewReplayOdometer(name string, dataFrequencyHz int, readings []TimedOdometerReadingResponse) *ReplayOdometer {
	return &ReplayOdometer{
		name:            name,
		dataFrequencyHz: dataFrequencyHz,
		cursor:          cursor{size: len(readings)},
		readings:        readings,
	}
}

// Name returns the name of the odometer.
func (odom *ReplayOdometer) Name() string {
	return odom.name
}

// DataFrequencyHz returns the polling rate of the odometer. Zero means replay as fast as possible.
func (odom *ReplayOdometer) DataFrequencyHz() int {
	return odom.dataFrequencyHz
}

// TimedOdometerReading returns the next reading, or ErrEndOfDataset once every reading was served.
func (odom *ReplayOdometer) TimedOdometerReading(ctx context.Context) (TimedOdometerReadingResponse, error) {
	odom.mu.Lock()
	defer odom.mu.Unlock()
	i, err := odom.cursor.advance(ctx)
	if err != nil {
		return TimedOdometerReadingResponse{}, err
	}
	return odom.readings[i], nil
}

// GeodeticProjector maps GPS style odometry onto a local plane whose origin is the first fix,
// with +X east and +Y north.
type GeodeticProjector struct {
	origin *geo.Point
}

// NewGeodeticProjector returns a projector centred on (lat, lng) in degrees.
func NewGeodeticProjector(lat, lng float64) *GeodeticProjector {
	return &GeodeticProjector{origin: geo.NewPoint(lat, lng)}
}

// Project returns the position of (lat, lng) in metres relative to the origin.
func (gp *GeodeticProjector) Project(lat, lng float64) r2.Point {
	p := geo.NewPoint(lat, lng)
	d := gp.origin.GreatCircleDistance(p) * 1000
	if d == 0 {
		return r2.Point{}
	}
	s, c := math.Sincos(gp.origin.BearingTo(p) * math.Pi / 180)
	return r2.Point{X: d * s, Y: d * c}
}

// HeadingToAngle converts a compass heading in degrees (clockwise from north) to a planar angle.
func HeadingToAngle(headingDeg float64) float64 {
	return pose2d.NormalizeAngle((90 - headingDeg) * math.Pi / 180)
}
