// Package inject provides dependency injected structures for mocking interfaces.
package inject

import (
	"context"

	s "github.com/viam-modules/viam-posegraph/sensors"
)

// TimedLaser is an injected TimedLaser.
type TimedLaser struct {
	s.TimedLaser
	NameFunc              func() string
	DataFrequencyHzFunc   func() int
	TimedLaserReadingFunc func(ctx context.Context) (s.TimedLaserReadingResponse, error)
}

// Name calls the injected Name or the real version.
func (tl *TimedLaser) Name() string {
	if tl.NameFunc == nil {
		return tl.TimedLaser.Name()
	}
	return tl.NameFunc()
}

// DataFrequencyHz calls the injected DataFrequencyHz or the real version.
func (tl *TimedLaser) DataFrequencyHz() int {
	if tl.DataFrequencyHzFunc == nil {
		return tl.TimedLaser.DataFrequencyHz()
	}
	return tl.DataFrequencyHzFunc()
}

// TimedLaserReading calls the injected TimedLaserReading or the real version.
func (tl *TimedLaser) TimedLaserReading(ctx context.Context) (s.TimedLaserReadingResponse, error) {
	if tl.TimedLaserReadingFunc == nil {
		return tl.TimedLaser.TimedLaserReading(ctx)
	}
	return tl.TimedLaserReadingFunc(ctx)
}
