// Package sensorprocess contains the logic to feed laser and odometer readings to the pose graph facade.
package sensorprocess

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-posegraph/pgfacade"
	s "github.com/viam-modules/viam-posegraph/sensors"
)

// endOfDatasetBackoff is how long an online poller waits after its sensor ran dry.
const endOfDatasetBackoff = time.Second

// Config holds config needed throughout the process of adding a sensor reading to the facade.
type Config struct {
	PoseGraph pgfacade.Interface
	Online    bool

	Laser    s.TimedLaser
	Odometer s.TimedOdometer

	Timeout      time.Duration
	Logger       logging.Logger
	FinalizeFunc func(context.Context, time.Duration) error
}

// busy reports whether err means the facade could not take the work in time, in which case
// offline mode retries the same reading.
func busy(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// remainingInterval returns how long to sleep so that polling runs at dataFrequencyHz.
func remainingInterval(dataFrequencyHz int, startTime time.Time) time.Duration {
	if dataFrequencyHz <= 0 {
		return 0
	}
	timeElapsedMs := int(time.Since(startTime).Milliseconds())
	return time.Duration(math.Max(0, float64(1000/dataFrequencyHz-timeElapsedMs))) * time.Millisecond
}
