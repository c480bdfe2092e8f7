package sensorprocess

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	s "github.com/viam-modules/viam-posegraph/sensors"
)

// StartOdometer polls the odometer to get the next reading and adds it to the facade.
// Stops when the context is Done.
func (config *Config) StartOdometer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addOdometerReadingInOnline(ctx); err != nil {
				config.Logger.Debugw("odometer reading not added", "error", err)
			}
		}
	}
}

// addOdometerReadingInOnline adds the most recent odometry and sleeps for the rest of the polling interval.
func (config *Config) addOdometerReadingInOnline(ctx context.Context) error {
	odometerReading, err := config.Odometer.TimedOdometerReading(ctx)
	if err != nil {
		if errors.Is(err, s.ErrEndOfDataset) {
			goutils.SelectContextOrWait(ctx, endOfDatasetBackoff)
		}
		return err
	}

	timeToSleep := config.tryAddOdometerReadingOnce(ctx, odometerReading)
	config.Logger.Debugf("odometer sleep for %v", timeToSleep)
	goutils.SelectContextOrWait(ctx, timeToSleep)
	return nil
}

// tryAddOdometerReadingUntilSuccess adds a reading to the facade, retrying while the facade is busy
// (offline mode). Any other error skips the reading.
func (config *Config) tryAddOdometerReadingUntilSuccess(ctx context.Context, reading s.TimedOdometerReadingResponse) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			err := config.tryAddOdometerReading(ctx, reading)
			if err == nil {
				return nil
			}
			if !busy(err) {
				config.Logger.Warnw("Skipping odometer reading due to error from pose graph", "error", err)
				return err
			}
		}
	}
}

// tryAddOdometerReadingOnce adds a reading to the facade and does not retry. Returns remainder of time interval.
func (config *Config) tryAddOdometerReadingOnce(ctx context.Context, reading s.TimedOdometerReadingResponse) time.Duration {
	startTime := time.Now().UTC()

	if err := config.tryAddOdometerReading(ctx, reading); err != nil {
		if busy(err) {
			config.Logger.Debugw("Skipping odometer reading due to a busy pose graph", "error", err)
		} else {
			config.Logger.Warnw("Skipping odometer reading due to error from pose graph", "error", err)
		}
	}
	return remainingInterval(config.Odometer.DataFrequencyHz(), startTime)
}

// tryAddOdometerReading tries to add a reading to the facade.
func (config *Config) tryAddOdometerReading(ctx context.Context, reading s.TimedOdometerReadingResponse) error {
	err := config.PoseGraph.AddOdometerReading(ctx, config.Timeout, config.Odometer.Name(), reading)
	if err != nil {
		config.Logger.Debugf("%v \t | ODOM  | Failure \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	} else {
		config.Logger.Debugf("%v \t | ODOM  | Success \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	}
	return err
}
