// Package posegraph implements the pose graph SLAM engine: node admission, constraint building,
// the graph store and the online/offline optimization strategies.
package posegraph

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/pose2d"
)

// NoNode marks the absent endpoint of a Prior factor.
const NoNode = -1

// ErrNotPositiveDefinite is returned when a covariance or information matrix cannot be factorized.
var ErrNotPositiveDefinite = errors.New("matrix is not symmetric positive-definite")

// Node is one vertex of the pose graph.
type Node struct {
	ID            int
	EstimatedPose pose2d.Pose
	// OdometryPose is the raw odometry pose at the moment the node was admitted.
	OdometryPose pose2d.Pose
	// PointCloud is expressed in the node frame and never changes after admission.
	PointCloud []r2.Point
}

func (n Node) clone() Node {
	pc := make([]r2.Point, len(n.PointCloud))
	copy(pc, n.PointCloud)
	n.PointCloud = pc
	return n
}

// FactorKind identifies the source of a factor.
type FactorKind int

const (
	// PriorFactor anchors a single node to an absolute pose.
	PriorFactor FactorKind = iota
	// OdometryFactor relates two successive nodes through the odometry motion model.
	OdometryFactor
	// ScanMatchFactor relates two nodes through an aligned pair of point clouds.
	ScanMatchFactor
)

func (k FactorKind) String() string {
	switch k {
	case PriorFactor:
		return "prior"
	case OdometryFactor:
		return "odometry"
	case ScanMatchFactor:
		return "scan_match"
	default:
		return "unknown"
	}
}

// Factor is a constraint submitted to the solver. For a Prior, From is NoNode and Measured is the
// absolute pose of To. Otherwise Measured is the pose of To expressed in the frame of From.
type Factor struct {
	Kind        FactorKind
	From        int
	To          int
	Measured    pose2d.Pose
	Information *mat.SymDense
}

func (f Factor) clone() Factor {
	if f.Information != nil {
		info := mat.NewSymDense(f.Information.SymmetricDim(), nil)
		info.CopySym(f.Information)
		f.Information = info
	}
	return f
}

// MatchResult is the outcome of aligning a source cloud onto a target cloud. RelativePose is the
// source frame expressed in the target frame.
type MatchResult struct {
	Converged    bool
	RelativePose pose2d.Pose
	Covariance   *mat.SymDense
}

// InformationFromSigmas returns the diagonal information matrix for independent x, y and theta
// standard deviations.
func InformationFromSigmas(sigmas config.Sigmas) (*mat.SymDense, error) {
	for _, s := range []float64{sigmas.X, sigmas.Y, sigmas.Theta} {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, errors.Wrapf(ErrNotPositiveDefinite, "sigma %v", s)
		}
	}
	return mat.NewSymDense(3, []float64{
		1 / (sigmas.X * sigmas.X), 0, 0,
		0, 1 / (sigmas.Y * sigmas.Y), 0,
		0, 0, 1 / (sigmas.Theta * sigmas.Theta),
	}), nil
}

// InformationFromCovariance inverts a 3x3 covariance through its Cholesky factorization.
func InformationFromCovariance(cov *mat.SymDense) (*mat.SymDense, error) {
	if cov == nil || cov.SymmetricDim() != 3 {
		return nil, errors.Wrap(ErrNotPositiveDefinite, "covariance must be 3x3")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Wrap(ErrNotPositiveDefinite, "covariance has non-finite entries")
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, ErrNotPositiveDefinite
	}
	var info mat.SymDense
	if err := chol.InverseTo(&info); err != nil {
		return nil, errors.Wrap(ErrNotPositiveDefinite, err.Error())
	}
	return &info, nil
}
