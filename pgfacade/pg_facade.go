// Package pgfacade serialises every call into the pose graph engine onto a single goroutine.
package pgfacade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
	s "github.com/viam-modules/viam-posegraph/sensors"
)

var emptyRequestParams = map[RequestParamType]interface{}{}

// Engine is the part of the pose graph engine the facade drives. *posegraph.SLAM implements it.
type Engine interface {
	ObserveOdometry(loc r2.Point, angle float64)
	ObserveLaser(ctx context.Context, scan posegraph.LaserScan) (bool, error)
	Finalize(ctx context.Context) error
	CurrentPose() pose2d.Pose
	CurrentMap() []r2.Point
	Nodes() []posegraph.Node
}

// Start launches the worker goroutine. It stops when ctx is done.
func (pf *PoseGraphFacade) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	pf.startGoroutine(ctx, activeBackgroundWorkers)
}

// AddOdometerReading feeds an odometry reading to the engine.
func (pf *PoseGraphFacade) AddOdometerReading(
	ctx context.Context,
	timeout time.Duration,
	odometerName string,
	currentReading s.TimedOdometerReadingResponse,
) error {
	requestParams := map[RequestParamType]interface{}{
		sensor:  odometerName,
		reading: currentReading,
	}

	_, err := pf.request(ctx, addOdometerReading, requestParams, timeout)
	return err
}

// AddLaserReading feeds a laser scan to the engine and reports whether it became a node.
func (pf *PoseGraphFacade) AddLaserReading(
	ctx context.Context,
	timeout time.Duration,
	laserName string,
	currentReading s.TimedLaserReadingResponse,
) (bool, error) {
	requestParams := map[RequestParamType]interface{}{
		sensor:  laserName,
		reading: currentReading,
	}

	untyped, err := pf.request(ctx, addLaserReading, requestParams, timeout)
	if err != nil {
		return false, err
	}

	admitted, ok := untyped.(bool)
	if !ok {
		return false, errors.New("unable to cast response from pose graph facade to a bool")
	}
	return admitted, nil
}

// Position returns the current pose estimate.
func (pf *PoseGraphFacade) Position(ctx context.Context, timeout time.Duration) (pose2d.Pose, error) {
	untyped, err := pf.request(ctx, position, emptyRequestParams, timeout)
	if err != nil {
		return pose2d.Pose{}, err
	}

	pos, ok := untyped.(pose2d.Pose)
	if !ok {
		return pose2d.Pose{}, errors.New("unable to cast response from pose graph facade to a pose")
	}
	return pos, nil
}

// PointCloudMap returns every node's scan placed at its current estimate.
func (pf *PoseGraphFacade) PointCloudMap(ctx context.Context, timeout time.Duration) ([]r2.Point, error) {
	untyped, err := pf.request(ctx, pointCloudMap, emptyRequestParams, timeout)
	if err != nil {
		return nil, err
	}

	pc, ok := untyped.([]r2.Point)
	if !ok {
		return nil, errors.New("unable to cast response from pose graph facade to a point slice")
	}
	return pc, nil
}

// Nodes returns a snapshot of every node in the graph.
func (pf *PoseGraphFacade) Nodes(ctx context.Context, timeout time.Duration) ([]posegraph.Node, error) {
	untyped, err := pf.request(ctx, nodes, emptyRequestParams, timeout)
	if err != nil {
		return nil, err
	}

	ns, ok := untyped.([]posegraph.Node)
	if !ok {
		return nil, errors.New("unable to cast response from pose graph facade to a node slice")
	}
	return ns, nil
}

// Finalize runs the engine's final optimization.
func (pf *PoseGraphFacade) Finalize(ctx context.Context, timeout time.Duration) error {
	_, err := pf.request(ctx, finalize, emptyRequestParams, timeout)
	return err
}

// RequestType defines the engine call that is being made.
type RequestType int64

const (
	// addOdometerReading represents ObserveOdometry.
	addOdometerReading RequestType = iota
	// addLaserReading represents ObserveLaser.
	addLaserReading
	// position represents CurrentPose.
	position
	// pointCloudMap represents CurrentMap.
	pointCloudMap
	// nodes represents Nodes.
	nodes
	// finalize represents Finalize.
	finalize
)

// RequestParamType defines the type being provided as input to the work.
type RequestParamType int64

const (
	// sensor represents a sensor name.
	sensor RequestParamType = iota
	// reading represents a sensor reading.
	reading
)

// Response defines the result of one piece of work that can be put on the result channel.
type Response struct {
	result interface{}
	err    error
}

/*
PoseGraphFacade exists to ensure that only one goroutine touches the engine at a time, so sensor
ingestion, queries and the final optimization never interleave.
*/
type PoseGraphFacade struct {
	engine      Engine
	requestChan chan Request
}

// Interface defines the functionality of a PoseGraphFacade instance.
// It should not be used outside of this package but needs to be public for testing purposes.
type Interface interface {
	request(
		ctxParent context.Context,
		requestType RequestType,
		inputs map[RequestParamType]interface{}, timeout time.Duration,
	) (interface{}, error)
	startGoroutine(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)

	Start(
		ctx context.Context,
		activeBackgroundWorkers *sync.WaitGroup,
	)
	AddOdometerReading(
		ctx context.Context,
		timeout time.Duration,
		odometerName string,
		currentReading s.TimedOdometerReadingResponse,
	) error
	AddLaserReading(
		ctx context.Context,
		timeout time.Duration,
		laserName string,
		currentReading s.TimedLaserReadingResponse,
	) (bool, error)
	Position(
		ctx context.Context,
		timeout time.Duration,
	) (pose2d.Pose, error)
	PointCloudMap(
		ctx context.Context,
		timeout time.Duration,
	) ([]r2.Point, error)
	Nodes(
		ctx context.Context,
		timeout time.Duration,
	) ([]posegraph.Node, error)
	Finalize(
		ctx context.Context,
		timeout time.Duration,
	) error
}

// Request defines all of the necessary pieces to call into the engine.
type Request struct {
	responseChan  chan Response
	requestType   RequestType
	requestParams map[RequestParamType]interface{}
}

// New instantiates the PoseGraphFacade struct which limits calls into the engine.
func New(engine Engine) PoseGraphFacade {
	return PoseGraphFacade{
		engine:      engine,
		requestChan: make(chan Request),
	}
}

// doWork provides the logic to call the correct engine function with the correct input.
func (r *Request) doWork(
	ctx context.Context,
	pf *PoseGraphFacade,
) (interface{}, error) {
	switch r.requestType {
	case addOdometerReading:
		reading, ok := r.requestParams[reading].(s.TimedOdometerReadingResponse)
		if !ok {
			return nil, errors.New("could not cast inputted reading to type sensors.TimedOdometerReadingResponse")
		}
		pf.engine.ObserveOdometry(reading.Position, reading.Heading)
		return nil, nil
	case addLaserReading:
		reading, ok := r.requestParams[reading].(s.TimedLaserReadingResponse)
		if !ok {
			return nil, errors.New("could not cast inputted reading to type sensors.TimedLaserReadingResponse")
		}
		return pf.engine.ObserveLaser(ctx, reading.Scan)
	case position:
		return pf.engine.CurrentPose(), nil
	case pointCloudMap:
		return pf.engine.CurrentMap(), nil
	case nodes:
		return pf.engine.Nodes(), nil
	case finalize:
		return nil, pf.engine.Finalize(ctx)
	}
	return nil, fmt.Errorf("no worktype found for: %v", r.requestType)
}

// request hands work to the engine goroutine. This function requires the caller to know which
// RequestTypes require casting to which response values.
func (pf *PoseGraphFacade) request(
	ctxParent context.Context,
	requestType RequestType,
	inputs map[RequestParamType]interface{},
	timeout time.Duration,
) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctxParent, timeout)
	defer cancel()

	req := Request{
		responseChan:  make(chan Response, 1),
		requestType:   requestType,
		requestParams: inputs,
	}

	// wait until the engine is free (and timeout if needed)
	select {
	case pf.requestChan <- req:
		select {
		case response := <-req.responseChan:
			return response.result, response.err
		case <-ctx.Done():
			msg := "timeout reading from pose graph"
			return nil, multierr.Combine(errors.New(msg), ctx.Err())
		}
	case <-ctx.Done():
		msg := "timeout writing to pose graph"
		return nil, multierr.Combine(errors.New(msg), ctx.Err())
	}
}

// startGoroutine starts the background goroutine that is responsible for ensuring only one call
// into the engine is being made at a time.
func (pf *PoseGraphFacade) startGoroutine(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case workToDo := <-pf.requestChan:
				workCtx, span := trace.StartSpan(ctx, "viamposegraph::pgfacade::doWork")
				result, err := workToDo.doWork(workCtx, pf)
				span.End()
				workToDo.responseChan <- Response{result: result, err: err}
			}
		}
	}()
}
