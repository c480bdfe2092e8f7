// Package sensors defines the timed laser and odometer sources used by the pose graph SLAM service.
package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// ErrEndOfDataset is returned by replay sensors once every reading has been served.
var ErrEndOfDataset = errors.New("reached end of dataset")

// TimedSensor describes what every timed source reports about itself.
type TimedSensor interface {
	Name() string
	DataFrequencyHz() int
}

// ValidateGetData calls readFunc every sensorValidationInterval until it succeeds or
// sensorValidationMaxTimeout has elapsed. A replay sensor that has run out of data passes,
// since offline mode ends the session on its own once the dataset is exhausted.
func ValidateGetData(
	ctx context.Context,
	readFunc func(ctx context.Context) error,
	sensorValidationMaxTimeout time.Duration,
	sensorValidationInterval time.Duration,
	logger logging.Logger,
) error {
	ctx, span := trace.StartSpan(ctx, "viamposegraph::sensors::ValidateGetData")
	defer span.End()

	startTime := time.Now().UTC()

	for {
		err := readFunc(ctx)
		if err == nil || errors.Is(err, ErrEndOfDataset) {
			return nil
		}

		logger.Debugw("ValidateGetData hit error: ", "error", err)
		if time.Since(startTime) >= sensorValidationMaxTimeout {
			return errors.Wrap(err, "ValidateGetData timeout")
		}
		if !goutils.SelectContextOrWait(ctx, sensorValidationInterval) {
			return ctx.Err()
		}
	}
}

// cursor hands out indices into a fixed list of readings, one at a time.
type cursor struct {
	next int
	size int
}

func (c *cursor) advance(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.next >= c.size {
		return 0, ErrEndOfDataset
	}
	i := c.next
	c.next++
	return i, nil
}
