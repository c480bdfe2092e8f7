package sensorprocess

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	s "github.com/viam-modules/viam-posegraph/sensors"
)

// StartLaser polls the laser to get the next scan and adds it to the facade.
// Stops when the context is Done.
func (config *Config) StartLaser(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addLaserReadingInOnline(ctx); err != nil {
				config.Logger.Debugw("laser reading not added", "error", err)
			}
		}
	}
}

// addLaserReadingInOnline adds the most recent scan and sleeps for the rest of the polling interval.
func (config *Config) addLaserReadingInOnline(ctx context.Context) error {
	laserReading, err := config.Laser.TimedLaserReading(ctx)
	if err != nil {
		if errors.Is(err, s.ErrEndOfDataset) {
			goutils.SelectContextOrWait(ctx, endOfDatasetBackoff)
		}
		return err
	}

	timeToSleep := config.tryAddLaserReadingOnce(ctx, laserReading)
	config.Logger.Debugf("laser sleep for %v", timeToSleep)
	goutils.SelectContextOrWait(ctx, timeToSleep)
	return nil
}

// tryAddLaserReadingUntilSuccess adds a scan to the facade, retrying while the facade is busy (offline
// mode). Any other error skips the scan.
func (config *Config) tryAddLaserReadingUntilSuccess(ctx context.Context, reading s.TimedLaserReadingResponse) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			err := config.tryAddLaserReading(ctx, reading)
			if err == nil {
				return nil
			}
			if !busy(err) {
				config.Logger.Warnw("Skipping laser reading due to error from pose graph", "error", err)
				return err
			}
		}
	}
}

// tryAddLaserReadingOnce adds a scan to the facade and does not retry. Returns remainder of time interval.
func (config *Config) tryAddLaserReadingOnce(ctx context.Context, reading s.TimedLaserReadingResponse) time.Duration {
	startTime := time.Now().UTC()

	if err := config.tryAddLaserReading(ctx, reading); err != nil {
		if busy(err) {
			config.Logger.Debugw("Skipping laser reading due to a busy pose graph", "error", err)
		} else {
			config.Logger.Warnw("Skipping laser reading due to error from pose graph", "error", err)
		}
	}
	return remainingInterval(config.Laser.DataFrequencyHz(), startTime)
}

// tryAddLaserReading tries to add a scan to the facade.
func (config *Config) tryAddLaserReading(ctx context.Context, reading s.TimedLaserReadingResponse) error {
	admitted, err := config.PoseGraph.AddLaserReading(ctx, config.Timeout, config.Laser.Name(), reading)
	if err != nil {
		config.Logger.Debugf("%v \t | LASER | Failure \t \t | %v \n", reading.ReadingTime, reading.ReadingTime.Unix())
	} else {
		config.Logger.Debugf("%v \t | LASER | Success \t \t | %v | node admitted: %v \n",
			reading.ReadingTime, reading.ReadingTime.Unix(), admitted)
	}
	return err
}
