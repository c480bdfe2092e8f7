package config

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-posegraph/pose2d"
)

// OptimizationMode selects how the pose graph is handed to the solver.
type OptimizationMode string

const (
	// OnlineMode submits factors to the solver as each node is admitted.
	OnlineMode OptimizationMode = "online"
	// OfflineMode records nodes while streaming and solves the whole graph once on finalize.
	OfflineMode OptimizationMode = "offline"
)

// MotionModel holds the linear odometry noise coefficients.
type MotionModel struct {
	TransErrFromTrans float64
	TransErrFromRot   float64
	RotErrFromTrans   float64
	RotErrFromRot     float64
}

// Sigmas holds diagonal standard deviations for x, y and theta.
type Sigmas struct {
	X     float64
	Y     float64
	Theta float64
}

// SolverConfig tunes the Gauss-Newton solver.
type SolverConfig struct {
	MaxIterations int
	Tolerance     float64
}

// ScanMatchConfig tunes the ICP scan matcher.
type ScanMatchConfig struct {
	MaxIterations             int
	MaxCorrespondenceDistance float64
	ConvergenceThreshold      float64
	MinCorrespondences        int
	// MaxMeanResidual rejects settled alignments whose mean point-to-line distance is larger.
	MaxMeanResidual           float64
}

// AlgoConfig is the algorithm configuration handed to the engine at construction.
type AlgoConfig struct {
	MinTranslationBetweenNodes float64
	MinAngleBetweenNodes       float64

	ConsiderOdomConstraint bool
	MotionModel            MotionModel
	MinMotionSigma         float64

	NonSuccessiveScanConstraints     bool
	MaxNodeDistanceForScanComparison float64
	MaxFactorsPerNode                int

	InitialPose pose2d.Pose
	PriorSigmas Sigmas

	OptimizationMode OptimizationMode
	LaserOffset      r2.Point

	Solver    SolverConfig
	ScanMatch ScanMatchConfig
}

// DefaultAlgoConfig returns the configuration used when no config_params override it.
func DefaultAlgoConfig() AlgoConfig {
	return AlgoConfig{
		MinTranslationBetweenNodes: 0.5,
		MinAngleBetweenNodes:       0.2,
		ConsiderOdomConstraint:     true,
		MotionModel: MotionModel{
			TransErrFromTrans: 0.2,
			TransErrFromRot:   0.1,
			RotErrFromTrans:   0.1,
			RotErrFromRot:     0.2,
		},
		MinMotionSigma:                   1e-3,
		NonSuccessiveScanConstraints:     true,
		MaxNodeDistanceForScanComparison: 5.0,
		MaxFactorsPerNode:                5,
		InitialPose:                      pose2d.Identity(),
		PriorSigmas:                      Sigmas{X: 0.01, Y: 0.01, Theta: 0.01},
		OptimizationMode:                 OnlineMode,
		LaserOffset:                      r2.Point{X: 0.2, Y: 0},
		Solver: SolverConfig{
			MaxIterations: 20,
			Tolerance:     1e-6,
		},
		ScanMatch: ScanMatchConfig{
			MaxIterations:             50,
			MaxCorrespondenceDistance: 0.5,
			ConvergenceThreshold:      1e-4,
			MinCorrespondences:        10,
			MaxMeanResidual:           0.05,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (cfg AlgoConfig) Validate() error {
	switch {
	case cfg.MinTranslationBetweenNodes < 0:
		return errors.New("min_translation_between_nodes cannot be negative")
	case cfg.MinAngleBetweenNodes < 0:
		return errors.New("min_angle_between_nodes cannot be negative")
	case cfg.MotionModel.TransErrFromTrans < 0, cfg.MotionModel.TransErrFromRot < 0,
		cfg.MotionModel.RotErrFromTrans < 0, cfg.MotionModel.RotErrFromRot < 0:
		return errors.New("motion model coefficients cannot be negative")
	case cfg.MinMotionSigma <= 0:
		return errors.New("min_motion_sigma must be greater than zero")
	case cfg.MaxNodeDistanceForScanComparison < 0:
		return errors.New("max_node_distance_for_scan_comparison cannot be negative")
	case cfg.MaxFactorsPerNode < 0:
		return errors.New("max_factors_per_node cannot be negative")
	case cfg.PriorSigmas.X <= 0, cfg.PriorSigmas.Y <= 0, cfg.PriorSigmas.Theta <= 0:
		return errors.New("prior sigmas must be greater than zero")
	case cfg.OptimizationMode != OnlineMode && cfg.OptimizationMode != OfflineMode:
		return errors.Errorf("optimization_mode must be %q or %q, got %q", OnlineMode, OfflineMode, cfg.OptimizationMode)
	case cfg.Solver.MaxIterations <= 0:
		return errors.New("solver_max_iterations must be greater than zero")
	case cfg.ScanMatch.MaxIterations <= 0:
		return errors.New("icp_max_iterations must be greater than zero")
	case cfg.ScanMatch.MinCorrespondences < 3:
		return errors.New("icp_min_correspondences must be at least 3")
	case cfg.ScanMatch.MaxMeanResidual <= 0:
		return errors.New("icp_max_mean_residual must be greater than zero")
	}
	return nil
}

// ParseAlgoConfig overlays config_params onto the defaults. Unknown keys are logged and ignored.
func ParseAlgoConfig(configParams map[string]string, logger logging.Logger) (AlgoConfig, error) {
	cfg, unused, err := parseAlgoConfig(configParams)
	if err != nil {
		return AlgoConfig{}, err
	}
	for _, k := range unused {
		logger.Warnf("unused config param: %s: %s", k, configParams[k])
	}
	return cfg, nil
}

func parseAlgoConfig(configParams map[string]string) (AlgoConfig, []string, error) {
	cfg := DefaultAlgoConfig()
	initialX, initialY, initialTheta := cfg.InitialPose.X(), cfg.InitialPose.Y(), cfg.InitialPose.Angle

	keys := make([]string, 0, len(configParams))
	for k := range configParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var unused []string
	for _, k := range keys {
		val := strings.TrimSpace(configParams[k])
		var err error
		switch k {
		case "min_translation_between_nodes":
			cfg.MinTranslationBetweenNodes, err = parseFloat(k, val)
		case "min_angle_between_nodes":
			cfg.MinAngleBetweenNodes, err = parseFloat(k, val)
		case "consider_odom_constraint":
			cfg.ConsiderOdomConstraint, err = parseBool(k, val)
		case "motion_model_trans_err_from_trans":
			cfg.MotionModel.TransErrFromTrans, err = parseFloat(k, val)
		case "motion_model_trans_err_from_rot":
			cfg.MotionModel.TransErrFromRot, err = parseFloat(k, val)
		case "motion_model_rot_err_from_trans":
			cfg.MotionModel.RotErrFromTrans, err = parseFloat(k, val)
		case "motion_model_rot_err_from_rot":
			cfg.MotionModel.RotErrFromRot, err = parseFloat(k, val)
		case "min_motion_sigma":
			cfg.MinMotionSigma, err = parseFloat(k, val)
		case "non_successive_scan_constraints":
			cfg.NonSuccessiveScanConstraints, err = parseBool(k, val)
		case "max_node_distance_for_scan_comparison":
			cfg.MaxNodeDistanceForScanComparison, err = parseFloat(k, val)
		case "max_factors_per_node":
			cfg.MaxFactorsPerNode, err = parseInt(k, val)
		case "initial_pose_x":
			initialX, err = parseFloat(k, val)
		case "initial_pose_y":
			initialY, err = parseFloat(k, val)
		case "initial_pose_theta":
			initialTheta, err = parseFloat(k, val)
		case "prior_sigma_x":
			cfg.PriorSigmas.X, err = parseFloat(k, val)
		case "prior_sigma_y":
			cfg.PriorSigmas.Y, err = parseFloat(k, val)
		case "prior_sigma_theta":
			cfg.PriorSigmas.Theta, err = parseFloat(k, val)
		case "optimization_mode":
			cfg.OptimizationMode = OptimizationMode(strings.ToLower(val))
		case "laser_offset_x":
			cfg.LaserOffset.X, err = parseFloat(k, val)
		case "laser_offset_y":
			cfg.LaserOffset.Y, err = parseFloat(k, val)
		case "solver_max_iterations":
			cfg.Solver.MaxIterations, err = parseInt(k, val)
		case "solver_tolerance":
			cfg.Solver.Tolerance, err = parseFloat(k, val)
		case "icp_max_iterations":
			cfg.ScanMatch.MaxIterations, err = parseInt(k, val)
		case "icp_max_correspondence_distance":
			cfg.ScanMatch.MaxCorrespondenceDistance, err = parseFloat(k, val)
		case "icp_convergence_threshold":
			cfg.ScanMatch.ConvergenceThreshold, err = parseFloat(k, val)
		case "icp_min_correspondences":
			cfg.ScanMatch.MinCorrespondences, err = parseInt(k, val)
		case "icp_max_mean_residual":
			cfg.ScanMatch.MaxMeanResidual, err = parseFloat(k, val)
		default:
			unused = append(unused, k)
		}
		if err != nil {
			return AlgoConfig{}, nil, err
		}
	}

	cfg.InitialPose = pose2d.New(initialX, initialY, initialTheta)
	if err := cfg.Validate(); err != nil {
		return AlgoConfig{}, nil, err
	}
	return cfg, unused, nil
}

func parseFloat(key, val string) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "config param %s", key)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("config param %s must be finite, got %s", key, val)
	}
	return f, nil
}

func parseInt(key, val string) (int, error) {
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.Wrapf(err, "config param %s", key)
	}
	return i, nil
}

func parseBool(key, val string) (bool, error) {
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.Wrapf(err, "config param %s", key)
	}
	return b, nil
}
