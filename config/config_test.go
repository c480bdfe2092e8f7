package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"
	"go.viam.com/utils"
)

const testCfgPath = "services.slam.attributes.fake"

func makeCfg() *Config {
	return &Config{
		Dataset:       "dataset.jsonl",
		DataDirectory: "/tmp/posegraph",
		ConfigParams: map[string]string{
			"optimization_mode": "online",
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("Simplest valid config", func(t *testing.T) {
		deps, err := makeCfg().Validate(testCfgPath)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, deps, test.ShouldResemble, []string{"dataset.jsonl"})
	})

	t.Run("Config without required fields", func(t *testing.T) {
		cfg := makeCfg()
		cfg.DataDirectory = ""
		_, err := cfg.Validate(testCfgPath)
		test.That(t, err, test.ShouldBeError,
			newError(utils.NewConfigValidationFieldRequiredError(testCfgPath, "data_dir").Error()))

		cfg = makeCfg()
		cfg.Dataset = ""
		_, err = cfg.Validate(testCfgPath)
		test.That(t, err, test.ShouldBeError,
			newError(utils.NewConfigValidationFieldRequiredError(testCfgPath, "dataset").Error()))
	})

	t.Run("Config with out of range values", func(t *testing.T) {
		negative := -1
		cfg := makeCfg()
		cfg.LaserDataFrequencyHz = &negative
		_, err := cfg.Validate(testCfgPath)
		test.That(t, err, test.ShouldBeError, newError(errNegativeLaserFrequency.Error()))

		cfg = makeCfg()
		cfg.OdometerDataFrequencyHz = &negative
		_, err = cfg.Validate(testCfgPath)
		test.That(t, err, test.ShouldBeError, newError(errNegativeOdometerFrequency.Error()))
	})

	t.Run("Config with an invalid config_params value", func(t *testing.T) {
		cfg := makeCfg()
		cfg.ConfigParams["max_factors_per_node"] = "many"
		_, err := cfg.Validate(testCfgPath)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "max_factors_per_node")
	})
}

func TestGetOptionalParameters(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("Pass default parameters", func(t *testing.T) {
		params, err := GetOptionalParameters(makeCfg(), 5, 20, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.LaserDataFrequencyHz, test.ShouldEqual, 5)
		test.That(t, params.OdometerDataFrequencyHz, test.ShouldEqual, 20)
	})

	t.Run("Replay mode with both frequencies zero", func(t *testing.T) {
		zero := 0
		cfg := makeCfg()
		cfg.LaserDataFrequencyHz = &zero
		cfg.OdometerDataFrequencyHz = &zero
		params, err := GetOptionalParameters(cfg, 5, 20, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params, test.ShouldResemble, OptionalConfigParams{})
	})

	t.Run("Mixed replay and live frequencies fail", func(t *testing.T) {
		zero := 0
		cfg := makeCfg()
		cfg.LaserDataFrequencyHz = &zero
		_, err := GetOptionalParameters(cfg, 5, 20, logger)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestParseAlgoConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("No params returns the defaults", func(t *testing.T) {
		cfg, err := ParseAlgoConfig(map[string]string{}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg, test.ShouldResemble, DefaultAlgoConfig())
	})

	t.Run("Every key overrides its field", func(t *testing.T) {
		cfg, err := ParseAlgoConfig(map[string]string{
			"min_translation_between_nodes":         "0.75",
			"min_angle_between_nodes":               "0.3",
			"consider_odom_constraint":              "false",
			"motion_model_trans_err_from_trans":     "0.4",
			"motion_model_trans_err_from_rot":       "0.3",
			"motion_model_rot_err_from_trans":       "0.2",
			"motion_model_rot_err_from_rot":         "0.1",
			"non_successive_scan_constraints":       "false",
			"max_node_distance_for_scan_comparison": "2.5",
			"max_factors_per_node":                  "2",
			"initial_pose_x":                        "1",
			"initial_pose_y":                        "-1",
			"initial_pose_theta":                    "7",
			"prior_sigma_x":                         "0.1",
			"optimization_mode":                     "OFFLINE",
			"laser_offset_x":                        "0.1",
			"solver_max_iterations":                 "5",
			"icp_max_correspondence_distance":       "0.25",
			"icp_max_mean_residual":                 "0.02",
		}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.MinTranslationBetweenNodes, test.ShouldEqual, 0.75)
		test.That(t, cfg.MinAngleBetweenNodes, test.ShouldEqual, 0.3)
		test.That(t, cfg.ConsiderOdomConstraint, test.ShouldBeFalse)
		test.That(t, cfg.MotionModel, test.ShouldResemble, MotionModel{0.4, 0.3, 0.2, 0.1})
		test.That(t, cfg.NonSuccessiveScanConstraints, test.ShouldBeFalse)
		test.That(t, cfg.MaxNodeDistanceForScanComparison, test.ShouldEqual, 2.5)
		test.That(t, cfg.MaxFactorsPerNode, test.ShouldEqual, 2)
		test.That(t, cfg.InitialPose.X(), test.ShouldEqual, 1.0)
		test.That(t, cfg.InitialPose.Y(), test.ShouldEqual, -1.0)
		test.That(t, cfg.InitialPose.Angle, test.ShouldAlmostEqual, 7-2*math.Pi, 1e-9)
		test.That(t, cfg.PriorSigmas.X, test.ShouldEqual, 0.1)
		test.That(t, cfg.OptimizationMode, test.ShouldEqual, OfflineMode)
		test.That(t, cfg.LaserOffset.X, test.ShouldEqual, 0.1)
		test.That(t, cfg.Solver.MaxIterations, test.ShouldEqual, 5)
		test.That(t, cfg.ScanMatch.MaxCorrespondenceDistance, test.ShouldEqual, 0.25)
		test.That(t, cfg.ScanMatch.MaxMeanResidual, test.ShouldEqual, 0.02)
	})

	t.Run("Unknown keys are ignored", func(t *testing.T) {
		cfg, err := ParseAlgoConfig(map[string]string{"mode": "2d"}, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg, test.ShouldResemble, DefaultAlgoConfig())
	})

	t.Run("Malformed and invalid values fail", func(t *testing.T) {
		for _, params := range []map[string]string{
			{"min_angle_between_nodes": "abc"},
			{"min_angle_between_nodes": "NaN"},
			{"consider_odom_constraint": "maybe"},
			{"max_factors_per_node": "1.5"},
			{"prior_sigma_theta": "0"},
			{"optimization_mode": "sometimes"},
			{"icp_min_correspondences": "2"},
			{"icp_max_mean_residual": "0"},
		} {
			_, err := ParseAlgoConfig(params, logger)
			test.That(t, err, test.ShouldNotBeNil)
		}
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("Loads a valid yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "good.yaml")
		contents := `dataset: run.jsonl
data_dir: ` + dir + `
laser_data_frequency_hz: 0
odometer_data_frequency_hz: 0
config_params:
  optimization_mode: offline
  max_factors_per_node: "3"
`
		test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

		cfg, err := LoadFile(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Dataset, test.ShouldEqual, "run.jsonl")
		test.That(t, *cfg.LaserDataFrequencyHz, test.ShouldEqual, 0)
		test.That(t, cfg.ConfigParams["optimization_mode"], test.ShouldEqual, "offline")
		test.That(t, cfg.ConfigParams["max_factors_per_node"], test.ShouldEqual, "3")
	})

	t.Run("Missing file fails", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("File failing validation fails", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		test.That(t, os.WriteFile(path, []byte("dataset: run.jsonl\n"), 0o600), test.ShouldBeNil)
		_, err := LoadFile(path)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "data_dir")
	})
}
