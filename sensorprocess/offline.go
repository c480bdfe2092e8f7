package sensorprocess

import (
	"context"

	"github.com/pkg/errors"

	s "github.com/viam-modules/viam-posegraph/sensors"
)

// StartOfflineSensorProcess replays both sensors in reading-time order, odometry first on ties, then
// runs the final optimization. It returns true once the whole dataset has been processed and the
// graph finalized.
func (config *Config) StartOfflineSensorProcess(ctx context.Context) bool {
	laserReading, laserDone, err := config.nextLaserReading(ctx)
	if err != nil {
		return false
	}
	odometerReading, odometerDone, err := config.nextOdometerReading(ctx)
	if err != nil {
		return false
	}

	for !laserDone || !odometerDone {
		if ctx.Err() != nil {
			return false
		}

		if !odometerDone && (laserDone || !laserReading.ReadingTime.Before(odometerReading.ReadingTime)) {
			if err := config.tryAddOdometerReadingUntilSuccess(ctx, odometerReading); err != nil && ctx.Err() != nil {
				return false
			}
			if odometerReading, odometerDone, err = config.nextOdometerReading(ctx); err != nil {
				return false
			}
			continue
		}

		if err := config.tryAddLaserReadingUntilSuccess(ctx, laserReading); err != nil && ctx.Err() != nil {
			return false
		}
		if laserReading, laserDone, err = config.nextLaserReading(ctx); err != nil {
			return false
		}
	}

	config.Logger.Info("reached the end of the dataset, running final optimization")
	return config.finalize(ctx)
}

// finalize runs the final optimization, retrying while the facade is busy.
func (config *Config) finalize(ctx context.Context) bool {
	for {
		err := config.FinalizeFunc(ctx, config.Timeout)
		if err == nil {
			config.Logger.Info("final optimization complete")
			return true
		}
		if !busy(err) || ctx.Err() != nil {
			config.Logger.Errorw("final optimization failed", "error", err)
			return false
		}
	}
}

// nextLaserReading returns the next scan and whether the laser ran out of data.
func (config *Config) nextLaserReading(ctx context.Context) (s.TimedLaserReadingResponse, bool, error) {
	reading, err := config.Laser.TimedLaserReading(ctx)
	if errors.Is(err, s.ErrEndOfDataset) {
		return s.TimedLaserReadingResponse{}, true, nil
	}
	if err != nil {
		config.Logger.Errorw("offline laser read failed", "error", err)
	}
	return reading, false, err
}

// nextOdometerReading returns the next odometry reading and whether the odometer ran out of data.
func (config *Config) nextOdometerReading(ctx context.Context) (s.TimedOdometerReadingResponse, bool, error) {
	reading, err := config.Odometer.TimedOdometerReading(ctx)
	if errors.Is(err, s.ErrEndOfDataset) {
		return s.TimedOdometerReadingResponse{}, true, nil
	}
	if err != nil {
		config.Logger.Errorw("offline odometer read failed", "error", err)
	}
	return reading, false, err
}
