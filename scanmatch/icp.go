// Package scanmatch implements point-to-line ICP alignment of planar point clouds.
package scanmatch

import (
	"math"

	"github.com/golang/geo/r2"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
)

const (
	// minVariance keeps the covariance of a perfect alignment invertible.
	minVariance = 1e-6
	// minSegmentLength is the shortest neighbour pair that still defines a line.
	minSegmentLength = 1e-9
)

// ICP aligns a source cloud onto a target cloud. Each source point is matched to the line through
// its two nearest target points so the alignment can slide along walls.
type ICP struct {
	cfg    config.ScanMatchConfig
	logger logging.Logger
}

// NewICP returns an ICP matcher.
func NewICP(cfg config.ScanMatchConfig, logger logging.Logger) *ICP {
	return &ICP{cfg: cfg, logger: logger}
}

type correspondence struct {
	moved  r2.Point // source point under the current transform
	target r2.Point
	// normal is the unit normal of the target line, zero when the neighbours coincide.
	normal r2.Point
}

// Match returns the pose of the source frame in the target frame. It reports Converged=false when
// too few correspondences are found, the increments do not settle within MaxIterations, or the
// settled alignment leaves a mean residual above MaxMeanResidual.
func (icp *ICP) Match(source, target []r2.Point, guess pose2d.Pose) posegraph.MatchResult {
	if len(source) < icp.cfg.MinCorrespondences || len(target) < icp.cfg.MinCorrespondences {
		return posegraph.MatchResult{}
	}

	pts := make(kdtree.Points, len(target))
	for i, p := range target {
		pts[i] = kdtree.Point{p.X, p.Y}
	}
	tree := kdtree.New(pts, false)
	maxDist2 := icp.cfg.MaxCorrespondenceDistance * icp.cfg.MaxCorrespondenceDistance

	transform := guess
	var pairs []correspondence
	for iter := 0; iter < icp.cfg.MaxIterations; iter++ {
		pairs = correspondences(tree, source, transform, maxDist2, pairs[:0])
		if len(pairs) < icp.cfg.MinCorrespondences {
			icp.logger.Debugw("scan match lost correspondences", "iteration", iter, "pairs", len(pairs))
			return posegraph.MatchResult{}
		}

		step, ok := linearize(pairs, transform).solve()
		if !ok {
			icp.logger.Debugw("scan match is degenerate", "iteration", iter, "pairs", len(pairs))
			return posegraph.MatchResult{}
		}
		transform = pose2d.New(transform.X()+step[0], transform.Y()+step[1], transform.Angle+step[2])
		if math.Abs(step[2]) < icp.cfg.ConvergenceThreshold && math.Hypot(step[0], step[1]) < icp.cfg.ConvergenceThreshold {
			return icp.settle(tree, source, transform, maxDist2, pairs[:0])
		}
	}

	icp.logger.Debugw("scan match did not converge", "iterations", icp.cfg.MaxIterations)
	return posegraph.MatchResult{}
}

// settle checks the residual of a converged transform and estimates its covariance.
func (icp *ICP) settle(
	tree *kdtree.Tree,
	source []r2.Point,
	transform pose2d.Pose,
	maxDist2 float64,
	pairs []correspondence,
) posegraph.MatchResult {
	pairs = correspondences(tree, source, transform, maxDist2, pairs)
	if len(pairs) < icp.cfg.MinCorrespondences {
		return posegraph.MatchResult{}
	}
	ne := linearize(pairs, transform)
	if mean := ne.sumDist / float64(len(pairs)); mean > icp.cfg.MaxMeanResidual {
		icp.logger.Debugw("scan match residual too large", "mean_residual", mean, "max", icp.cfg.MaxMeanResidual)
		return posegraph.MatchResult{}
	}
	cov, ok := ne.covariance()
	if !ok {
		return posegraph.MatchResult{}
	}
	return posegraph.MatchResult{Converged: true, RelativePose: transform, Covariance: cov}
}

func correspondences(tree *kdtree.Tree, source []r2.Point, transform pose2d.Pose, maxDist2 float64, out []correspondence) []correspondence {
	for _, p := range source {
		moved := pose2d.TransformPoint(p, transform)
		keeper := kdtree.NewNKeeper(2)
		tree.NearestSet(keeper, kdtree.Point{moved.X, moved.Y})
		if keeper.Len() == 0 || keeper.Heap[0].Comparable == nil || keeper.Heap[0].Dist > maxDist2 {
			continue
		}
		first := keeper.Heap[0].Comparable.(kdtree.Point)
		c := correspondence{moved: moved, target: r2.Point{X: first[0], Y: first[1]}}
		if keeper.Len() > 1 && keeper.Heap[1].Comparable != nil {
			second := keeper.Heap[1].Comparable.(kdtree.Point)
			if seg := (r2.Point{X: second[0], Y: second[1]}).Sub(c.target); seg.Norm() > minSegmentLength {
				c.normal = seg.Ortho().Normalize()
			}
		}
		out = append(out, c)
	}
	return out
}

// normalEquations accumulates JᵀJ and Jᵀr over the residuals of a transform (x, y, θ).
type normalEquations struct {
	jtj     *mat.SymDense
	jtr     *mat.VecDense
	sumSq   float64
	sumDist float64
	rows    int
}

func (ne *normalEquations) add(j [3]float64, r float64) {
	for a := 0; a < 3; a++ {
		for b := a; b < 3; b++ {
			ne.jtj.SetSym(a, b, ne.jtj.At(a, b)+j[a]*j[b])
		}
		ne.jtr.SetVec(a, ne.jtr.AtVec(a)+j[a]*r)
	}
	ne.sumSq += r * r
	ne.rows++
}

// linearize builds point-to-line rows, or point-to-point rows where no line is available.
func linearize(pairs []correspondence, transform pose2d.Pose) *normalEquations {
	ne := &normalEquations{jtj: mat.NewSymDense(3, nil), jtr: mat.NewVecDense(3, nil)}
	for _, c := range pairs {
		// derivative of the moved point with respect to θ
		lever := c.moved.Sub(transform.Translation).Ortho()
		diff := c.moved.Sub(c.target)
		if c.normal == (r2.Point{}) {
			ne.add([3]float64{1, 0, lever.X}, diff.X)
			ne.add([3]float64{0, 1, lever.Y}, diff.Y)
			ne.sumDist += diff.Norm()
			continue
		}
		r := c.normal.Dot(diff)
		ne.add([3]float64{c.normal.X, c.normal.Y, c.normal.Dot(lever)}, r)
		ne.sumDist += math.Abs(r)
	}
	return ne
}

// solve returns the Gauss-Newton increment, or false when JᵀJ is singular.
func (ne *normalEquations) solve() ([3]float64, bool) {
	var chol mat.Cholesky
	if ok := chol.Factorize(ne.jtj); !ok {
		return [3]float64{}, false
	}
	var delta mat.VecDense
	if err := chol.SolveVecTo(&delta, ne.jtr); err != nil {
		return [3]float64{}, false
	}
	return [3]float64{-delta.AtVec(0), -delta.AtVec(1), -delta.AtVec(2)}, true
}

// covariance estimates the uncertainty of the transform as σ²(JᵀJ)⁻¹, with σ² the residual variance.
func (ne *normalEquations) covariance() (*mat.SymDense, bool) {
	variance := minVariance
	if dof := float64(ne.rows - 3); dof > 0 {
		variance = math.Max(ne.sumSq/dof, minVariance)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(ne.jtj); !ok {
		return nil, false
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, false
	}
	cov.ScaleSym(variance, &cov)
	return &cov, true
}
