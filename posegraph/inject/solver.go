package inject

import (
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
)

// Solver is an injected Solver.
type Solver struct {
	posegraph.Solver
	UpdateFunc      func(factors []posegraph.Factor, initial map[int]pose2d.Pose) error
	BatchSolveFunc  func(factors []posegraph.Factor, initial map[int]pose2d.Pose) error
	EstimateAllFunc func() (map[int]pose2d.Pose, error)
}

// Update calls the injected Update or the real version.
func (s *Solver) Update(factors []posegraph.Factor, initial map[int]pose2d.Pose) error {
	if s.UpdateFunc == nil {
		return s.Solver.Update(factors, initial)
	}
	return s.UpdateFunc(factors, initial)
}

// BatchSolve calls the injected BatchSolve or the real version.
func (s *Solver) BatchSolve(factors []posegraph.Factor, initial map[int]pose2d.Pose) error {
	if s.BatchSolveFunc == nil {
		return s.Solver.BatchSolve(factors, initial)
	}
	return s.BatchSolveFunc(factors, initial)
}

// EstimateAll calls the injected EstimateAll or the real version.
func (s *Solver) EstimateAll() (map[int]pose2d.Pose, error) {
	if s.EstimateAllFunc == nil {
		return s.Solver.EstimateAll()
	}
	return s.EstimateAllFunc()
}
