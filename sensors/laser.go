package sensors

import (
	"context"
	"sync"
	"time"

	"github.com/viam-modules/viam-posegraph/posegraph"
)

// TimedLaser describes a planar laser that reports the time each scan is from.
type TimedLaser interface {
	TimedSensor
	TimedLaserReading(ctx context.Context) (TimedLaserReadingResponse, error)
}

// TimedLaserReadingResponse is a laser scan with its time and whether it came from a replayed dataset.
type TimedLaserReadingResponse struct {
	Scan        posegraph.LaserScan
	ReadingTime time.Time
	Replay      bool
}

// ReplayLaser serves the laser scans of a dataset in file order.
type ReplayLaser struct {
	name            string
	dataFrequencyHz int

	mu       sync.Mutex
	cursor   cursor
	readings []TimedLaserReadingResponse
}

// NewReplayLaser returns a laser serving readings in order.
func NewReplayLaser(name string, dataFrequencyHz int, readings []TimedLaserReadingResponse) *ReplayLaser {
	return &ReplayLaser{
		name:            name,
		dataFrequencyHz: dataFrequencyHz,
		cursor:          cursor{size: len(readings)},
		readings:        readings,
	}
}

// Name returns the name of the laser.
func (l *ReplayLaser) Name() string {
	return l.name
}

// DataFrequencyHz returns the polling rate of the laser. Zero means replay as fast as possible.
func (l *ReplayLaser) DataFrequencyHz() int {
	return l.dataFrequencyHz
}

// TimedLaserReading returns the next scan, or ErrEndOfDataset once every scan was served.
func (l *ReplayLaser) TimedLaserReading(ctx context.Context) (TimedLaserReadingResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, err := l.cursor.advance(ctx)
	if err != nil {
		return TimedLaserReadingResponse{}, err
	}
	return l.readings[i], nil
}
