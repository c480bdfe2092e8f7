package pgfacade

import (
	"context"

	"github.com/golang/geo/r2"

	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
)

// EngineMock represents a fake instance of the pose graph engine. Every func must be set before
// the corresponding method is called.
type EngineMock struct {
	ObserveOdometryFunc func(loc r2.Point, angle float64)
	ObserveLaserFunc    func(ctx context.Context, scan posegraph.LaserScan) (bool, error)
	FinalizeFunc        func(ctx context.Context) error
	CurrentPoseFunc     func() pose2d.Pose
	CurrentMapFunc      func() []r2.Point
	NodesFunc           func() []posegraph.Node
}

// ObserveOdometry calls the injected ObserveOdometryFunc.
func (em *EngineMock) ObserveOdometry(loc r2.Point, angle float64) {
	em.ObserveOdometryFunc(loc, angle)
}

// ObserveLaser calls the injected ObserveLaserFunc.
func (em *EngineMock) ObserveLaser(ctx context.Context, scan posegraph.LaserScan) (bool, error) {
	return em.ObserveLaserFunc(ctx, scan)
}

// Finalize calls the injected FinalizeFunc.
func (em *EngineMock) Finalize(ctx context.Context) error {
	return em.FinalizeFunc(ctx)
}

// CurrentPose calls the injected CurrentPoseFunc.
func (em *EngineMock) CurrentPose() pose2d.Pose {
	return em.CurrentPoseFunc()
}

// CurrentMap calls the injected CurrentMapFunc.
func (em *EngineMock) CurrentMap() []r2.Point {
	return em.CurrentMapFunc()
}

// Nodes calls the injected NodesFunc.
func (em *EngineMock) Nodes() []posegraph.Node {
	return em.NodesFunc()
}
