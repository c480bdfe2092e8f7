// Package config implements functions to assist with attribute evaluation in the pose graph SLAM service.
package config

import (
	"os"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"
)

var (
	errNegativeLaserFrequency    = errors.New("cannot specify laser_data_frequency_hz less than zero")
	errNegativeOdometerFrequency = errors.New("cannot specify odometer_data_frequency_hz less than zero")
)

// newError returns an error specific to a failure in the SLAM config.
func newError(configError string) error {
	return errors.Errorf("SLAM Service configuration error: %s", configError)
}

// Config describes how to configure the SLAM service.
type Config struct {
	Dataset                 string            `json:"dataset" yaml:"dataset"`
	DataDirectory           string            `json:"data_dir" yaml:"data_dir"`
	LaserDataFrequencyHz    *int              `json:"laser_data_frequency_hz,omitempty" yaml:"laser_data_frequency_hz,omitempty"`
	OdometerDataFrequencyHz *int              `json:"odometer_data_frequency_hz,omitempty" yaml:"odometer_data_frequency_hz,omitempty"`
	ConfigParams            map[string]string `json:"config_params" yaml:"config_params"`
}

// OptionalConfigParams holds the optional config parameters of SLAM.
type OptionalConfigParams struct {
	LaserDataFrequencyHz    int
	OdometerDataFrequencyHz int
}

// Validate checks the required fields and returns the implicit dependencies of the service.
func (config *Config) Validate(path string) ([]string, error) {
	if config.DataDirectory == "" {
		return nil, newError(utils.NewConfigValidationFieldRequiredError(path, "data_dir").Error())
	}

	if config.Dataset == "" {
		return nil, newError(utils.NewConfigValidationFieldRequiredError(path, "dataset").Error())
	}

	if config.LaserDataFrequencyHz != nil && *config.LaserDataFrequencyHz < 0 {
		return nil, newError(errNegativeLaserFrequency.Error())
	}

	if config.OdometerDataFrequencyHz != nil && *config.OdometerDataFrequencyHz < 0 {
		return nil, newError(errNegativeOdometerFrequency.Error())
	}

	if _, _, err := parseAlgoConfig(config.ConfigParams); err != nil {
		return nil, newError(utils.NewConfigValidationError(path, err).Error())
	}

	return []string{config.Dataset}, nil
}

// GetOptionalParameters sets any unset optional config parameters to the values passed to this function,
// and returns them.
func GetOptionalParameters(config *Config, defaultLaserDataFrequencyHz,
	defaultOdometerDataFrequencyHz int, logger logging.Logger,
) (OptionalConfigParams, error) {
	var optionalConfigParams OptionalConfigParams

	if config.LaserDataFrequencyHz == nil {
		optionalConfigParams.LaserDataFrequencyHz = defaultLaserDataFrequencyHz
		logger.Debugf("config did not provide laser_data_frequency_hz, setting to default value of %d", defaultLaserDataFrequencyHz)
	} else {
		optionalConfigParams.LaserDataFrequencyHz = *config.LaserDataFrequencyHz
	}

	if config.OdometerDataFrequencyHz == nil {
		optionalConfigParams.OdometerDataFrequencyHz = defaultOdometerDataFrequencyHz
		logger.Debugf("config did not provide odometer_data_frequency_hz, setting to default value of %d",
			defaultOdometerDataFrequencyHz)
	} else {
		optionalConfigParams.OdometerDataFrequencyHz = *config.OdometerDataFrequencyHz
	}

	// sensors either both stream live or are both replayed as fast as possible
	if (optionalConfigParams.LaserDataFrequencyHz == 0) != (optionalConfigParams.OdometerDataFrequencyHz == 0) {
		return OptionalConfigParams{}, newError("laser and odometer data frequencies must both be zero (replay) or both be nonzero (live)")
	}

	if optionalConfigParams.LaserDataFrequencyHz == 0 {
		logger.Info("sensor data frequencies are zero, replaying the dataset as fast as possible")
	}

	return optionalConfigParams, nil
}

// LoadFile reads service attributes from a YAML file and validates them.
func LoadFile(path string) (*Config, error) {
	//nolint:gosec
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %q", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %q", path)
	}

	if cfg.ConfigParams == nil {
		cfg.ConfigParams = map[string]string{}
	}

	if _, err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}
