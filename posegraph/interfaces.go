package posegraph

import (
	"github.com/golang/geo/r2"

	"github.com/viam-modules/viam-posegraph/pose2d"
)

// ScanMatcher aligns a source cloud onto a target cloud starting from a guess of the source frame
// in the target frame. It must be deterministic; non-convergence is reported through
// MatchResult.Converged.
type ScanMatcher interface {
	Match(source, target []r2.Point, guess pose2d.Pose) MatchResult
}

// Solver is a nonlinear least-squares backend over planar poses keyed by node id.
// A failed Update or BatchSolve must leave the solver's previous estimates in place.
type Solver interface {
	// Update adds factors and initial estimates for new nodes to the existing problem and re-solves.
	Update(factors []Factor, initial map[int]pose2d.Pose) error
	// BatchSolve replaces the whole problem with the given factors and initial estimates and solves it.
	BatchSolve(factors []Factor, initial map[int]pose2d.Pose) error
	// EstimateAll returns the current estimate of every node known to the solver.
	EstimateAll() (map[int]pose2d.Pose, error)
}

// SolverFactory creates an empty solver.
type SolverFactory func() Solver
