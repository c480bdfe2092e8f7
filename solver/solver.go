// Package solver implements a dense Gauss-Newton least-squares solver over planar poses.
package solver

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
)

// ErrSingularSystem is returned when the normal equations cannot be solved, typically because a
// node is unconstrained or the graph has no prior.
var ErrSingularSystem = errors.New("pose graph normal equations are singular")

// GaussNewton keeps every factor and estimate it has been given and re-solves the whole problem
// on each call. A failed call leaves its previous state untouched.
type GaussNewton struct {
	cfg       config.SolverConfig
	logger    logging.Logger
	factors   []posegraph.Factor
	estimates map[int]pose2d.Pose
}

// NewGaussNewton returns an empty solver.
func NewGaussNewton(cfg config.SolverConfig, logger logging.Logger) *GaussNewton {
	return &GaussNewton{
		cfg:       cfg,
		logger:    logger,
		estimates: map[int]pose2d.Pose{},
	}
}

// Factory returns a posegraph.SolverFactory creating empty GaussNewton solvers.
func Factory(cfg config.SolverConfig, logger logging.Logger) posegraph.SolverFactory {
	return func() posegraph.Solver {
		return NewGaussNewton(cfg, logger)
	}
}

// Update adds new nodes and factors to the problem and re-solves it.
func (gn *GaussNewton) Update(factors []posegraph.Factor, initial map[int]pose2d.Pose) error {
	estimates := make(map[int]pose2d.Pose, len(gn.estimates)+len(initial))
	for id, p := range gn.estimates {
		estimates[id] = p
	}
	for id, p := range initial {
		if _, ok := estimates[id]; ok {
			return errors.Errorf("node %d is already in the problem", id)
		}
		estimates[id] = p
	}

	all := make([]posegraph.Factor, 0, len(gn.factors)+len(factors))
	all = append(all, gn.factors...)
	all = append(all, factors...)

	solved, err := gn.solve(all, estimates)
	if err != nil {
		return err
	}
	gn.factors = all
	gn.estimates = solved
	return nil
}

// BatchSolve replaces the problem with factors and initial and solves it.
func (gn *GaussNewton) BatchSolve(factors []posegraph.Factor, initial map[int]pose2d.Pose) error {
	estimates := make(map[int]pose2d.Pose, len(initial))
	for id, p := range initial {
		estimates[id] = p
	}
	all := make([]posegraph.Factor, len(factors))
	copy(all, factors)

	solved, err := gn.solve(all, estimates)
	if err != nil {
		return err
	}
	gn.factors = all
	gn.estimates = solved
	return nil
}

// EstimateAll returns a copy of the current estimates.
func (gn *GaussNewton) EstimateAll() (map[int]pose2d.Pose, error) {
	out := make(map[int]pose2d.Pose, len(gn.estimates))
	for id, p := range gn.estimates {
		out[id] = p
	}
	return out, nil
}

// solve runs Gauss-Newton iterations on a copy of estimates.
func (gn *GaussNewton) solve(factors []posegraph.Factor, estimates map[int]pose2d.Pose) (map[int]pose2d.Pose, error) {
	if len(estimates) == 0 {
		return estimates, nil
	}

	ids := make([]int, 0, len(estimates))
	for id := range estimates {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	index := make(map[int]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	for _, f := range factors {
		if f.Information == nil || f.Information.SymmetricDim() != 3 {
			return nil, errors.Errorf("%s factor %d->%d has no 3x3 information matrix", f.Kind, f.From, f.To)
		}
		if _, ok := index[f.To]; !ok {
			return nil, errors.Errorf("%s factor references unknown node %d", f.Kind, f.To)
		}
		if f.Kind != posegraph.PriorFactor {
			if _, ok := index[f.From]; !ok {
				return nil, errors.Errorf("%s factor references unknown node %d", f.Kind, f.From)
			}
		}
	}

	x := make([]pose2d.Pose, len(ids))
	for i, id := range ids {
		x[i] = estimates[id]
	}

	dim := 3 * len(ids)
	converged := false
	iter := 0
	for ; iter < gn.cfg.MaxIterations; iter++ {
		h := mat.NewSymDense(dim, nil)
		g := mat.NewVecDense(dim, nil)
		for _, f := range factors {
			accumulate(h, g, f, x, index)
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(h); !ok {
			return nil, ErrSingularSystem
		}
		var dx mat.VecDense
		if err := chol.SolveVecTo(&dx, g); err != nil {
			return nil, errors.Wrap(ErrSingularSystem, err.Error())
		}

		maxStep := 0.0
		for i := range x {
			sx, sy, st := -dx.AtVec(3*i), -dx.AtVec(3*i+1), -dx.AtVec(3*i+2)
			if math.IsNaN(sx) || math.IsNaN(sy) || math.IsNaN(st) {
				return nil, errors.Wrap(ErrSingularSystem, "solver diverged")
			}
			x[i] = pose2d.New(x[i].X()+sx, x[i].Y()+sy, x[i].Angle+st)
			maxStep = math.Max(maxStep, math.Max(math.Abs(sx), math.Max(math.Abs(sy), math.Abs(st))))
		}
		if maxStep < gn.cfg.Tolerance {
			converged = true
			iter++
			break
		}
	}
	if !converged {
		gn.logger.Debugw("solver hit the iteration limit", "iterations", iter, "nodes", len(ids))
	}

	out := make(map[int]pose2d.Pose, len(ids))
	for i, id := range ids {
		out[id] = x[i]
	}
	return out, nil
}

// TotalError returns the information weighted squared error of every factor at the current estimates.
func (gn *GaussNewton) TotalError() float64 {
	ids := make([]int, 0, len(gn.estimates))
	for id := range gn.estimates {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	index := make(map[int]int, len(ids))
	x := make([]pose2d.Pose, len(ids))
	for i, id := range ids {
		index[id] = i
		x[i] = gn.estimates[id]
	}

	total := 0.0
	for _, f := range gn.factors {
		e, _, _ := linearize(f, x, index)
		omega := toMat3(f.Information)
		oe := omega.mulVec(e)
		total += e[0]*oe[0] + e[1]*oe[1] + e[2]*oe[2]
	}
	return total
}
