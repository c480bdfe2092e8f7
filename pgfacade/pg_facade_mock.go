package pgfacade

import (
	"context"
	"sync"
	"time"

	"github.com/golang/geo/r2"

	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
	s "github.com/viam-modules/viam-posegraph/sensors"
)

// Mock represents a fake instance of the pose graph facade.
type Mock struct {
	PoseGraphFacade
	requestFunc func(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{},
		timeout time.Duration,
	) (interface{}, error)
	startGoroutineFunc func(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	StartFunc func(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)
	AddOdometerReadingFunc func(
		ctx context.Context,
		timeout time.Duration,
		odometerName string,
		currentReading s.TimedOdometerReadingResponse,
	) error
	AddLaserReadingFunc func(
		ctx context.Context,
		timeout time.Duration,
		laserName string,
		currentReading s.TimedLaserReadingResponse,
	) (bool, error)
	PositionFunc func(
		ctx context.Context,
		timeout time.Duration,
	) (pose2d.Pose, error)
	PointCloudMapFunc func(
		ctx context.Context,
		timeout time.Duration,
	) ([]r2.Point, error)
	NodesFunc func(
		ctx context.Context,
		timeout time.Duration,
	) ([]posegraph.Node, error)
	FinalizeFunc func(
		ctx context.Context,
		timeout time.Duration,
	) error
}

// request calls the injected requestFunc or the real version.
func (pf *Mock) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	if pf.requestFunc == nil {
		return pf.PoseGraphFacade.request(ctxParent, requestType, inputs, timeout)
	}
	return pf.requestFunc(ctxParent, requestType, inputs, timeout)
}

// startGoroutine calls the injected startGoroutineFunc or the real version.
func (pf *Mock) startGoroutine(
	ctx context.Context,
	activeBackgroundWorkers *sync.WaitGroup,
) {
	if pf.startGoroutineFunc == nil {
		pf.PoseGraphFacade.startGoroutine(ctx, activeBackgroundWorkers)
		return
	}
	pf.startGoroutineFunc(ctx, activeBackgroundWorkers)
}

// Start calls the injected StartFunc or the real version.
func (pf *Mock) Start(
	ctx context.Context,
	activeBackgroundWorkers *sync.WaitGroup,
) {
	if pf.StartFunc == nil {
		pf.PoseGraphFacade.Start(ctx, activeBackgroundWorkers)
		return
	}
	pf.StartFunc(ctx, activeBackgroundWorkers)
}

// AddOdometerReading calls the injected AddOdometerReadingFunc or the real version.
func (pf *Mock) AddOdometerReading(
	ctx context.Context,
	timeout time.Duration,
	odometerName string,
	currentReading s.TimedOdometerReadingResponse,
) error {
	if pf.AddOdometerReadingFunc == nil {
		return pf.PoseGraphFacade.AddOdometerReading(ctx, timeout, odometerName, currentReading)
	}
	return pf.AddOdometerReadingFunc(ctx, timeout, odometerName, currentReading)
}

// AddLaserReading calls the injected AddLaserReadingFunc or the real version.
func (pf *Mock) AddLaserReading(
	ctx context.Context,
	timeout time.Duration,
	laserName string,
	currentReading s.TimedLaserReadingResponse,
) (bool, error) {
	if pf.AddLaserReadingFunc == nil {
		return pf.PoseGraphFacade.AddLaserReading(ctx, timeout, laserName, currentReading)
	}
	return pf.AddLaserReadingFunc(ctx, timeout, laserName, currentReading)
}

// Position calls the injected PositionFunc or the real version.
func (pf *Mock) Position(
	ctx context.Context,
	timeout time.Duration,
) (pose2d.Pose, error) {
	if pf.PositionFunc == nil {
		return pf.PoseGraphFacade.Position(ctx, timeout)
	}
	return pf.PositionFunc(ctx, timeout)
}

// PointCloudMap calls the injected PointCloudMapFunc or the real version.
func (pf *Mock) PointCloudMap(
	ctx context.Context,
	timeout time.Duration,
) ([]r2.Point, error) {
	if pf.PointCloudMapFunc == nil {
		return pf.PoseGraphFacade.PointCloudMap(ctx, timeout)
	}
	return pf.PointCloudMapFunc(ctx, timeout)
}

// Nodes calls the injected NodesFunc or the real version.
func (pf *Mock) Nodes(
	ctx context.Context,
	timeout time.Duration,
) ([]posegraph.Node, error) {
	if pf.NodesFunc == nil {
		return pf.PoseGraphFacade.Nodes(ctx, timeout)
	}
	return pf.NodesFunc(ctx, timeout)
}

// Finalize calls the injected FinalizeFunc or the real version.
func (pf *Mock) Finalize(
	ctx context.Context,
	timeout time.Duration,
) error {
	if pf.FinalizeFunc == nil {
		return pf.PoseGraphFacade.Finalize(ctx, timeout)
	}
	return pf.FinalizeFunc(ctx, timeout)
}
