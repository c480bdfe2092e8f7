// Package viamposegraph implements 2D pose graph simultaneous localization and mapping.
// This is an Experimental package.
package viamposegraph

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	viamgrpc "go.viam.com/rdk/grpc"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/dataprocess"
	"github.com/viam-modules/viam-posegraph/pgfacade"
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
	"github.com/viam-modules/viam-posegraph/postprocess"
	"github.com/viam-modules/viam-posegraph/scanmatch"
	"github.com/viam-modules/viam-posegraph/sensorprocess"
	s "github.com/viam-modules/viam-posegraph/sensors"
	"github.com/viam-modules/viam-posegraph/solver"
)

// ServiceName is the name the service logs and reports itself under.
const ServiceName = "viam:slam:posegraph"

var (
	// ErrClosed denotes that a service method was called on a closed service.
	ErrClosed = errors.Errorf("resource (%s) is closed", ServiceName)
	// ErrNothingToUndo denotes that postprocess_undo was called without any postprocessing steps.
	ErrNothingToUndo = errors.New("no postprocessing steps to undo")
)

const (
	defaultLaserDataFrequencyHz    = 5
	defaultOdometerDataFrequencyHz = 20
	// DefaultFacadeTimeout bounds every call into the pose graph facade.
	DefaultFacadeTimeout        = 5 * time.Minute
	chunkSizeBytes              = 1 * 1024 * 1024
	sensorValidationMaxTimeout  = 30 * time.Second
	sensorValidationInterval    = 500 * time.Millisecond
	dataDirectoryPerm           = 0o750
	optimBeforeFilename         = "optim_before.csv"
	optimAfterFilename          = "optim_after.csv"
	mapFilePrefix               = "map"
	jobDoneCommand              = "job_done"
	finalizeCommand             = "finalize"
	saveMapCommand              = "save_map"
	postprocessEnabledResponse  = "postprocessing enabled"
	postprocessDisabledResponse = "postprocessing disabled"
	successResponse             = "success"
)

func initSensorProcesses(cancelCtx context.Context, svc *PoseGraphService) {
	spConfig := sensorprocess.Config{
		PoseGraph:    svc.pgfacade,
		Online:       svc.online,
		Laser:        svc.laser,
		Odometer:     svc.odometer,
		Timeout:      svc.facadeTimeout,
		Logger:       svc.logger,
		FinalizeFunc: svc.finalize,
	}

	if !svc.online {
		svc.sensorProcessWorkers.Add(1)
		go func() {
			defer svc.sensorProcessWorkers.Done()
			if jobDone := spConfig.StartOfflineSensorProcess(cancelCtx); jobDone {
				svc.jobDone.Store(true)
				svc.cancelSensorProcessFunc()
			}
		}()
		return
	}

	svc.sensorProcessWorkers.Add(2)
	go func() {
		defer svc.sensorProcessWorkers.Done()
		spConfig.StartLaser(cancelCtx)
	}()
	go func() {
		defer svc.sensorProcessWorkers.Done()
		spConfig.StartOdometer(cancelCtx)
	}()
}

// New returns a new pose graph SLAM service. The laser and odometer overrides replace the sensors
// replayed from the configured dataset when they are not nil.
func New(
	ctx context.Context,
	svcConfig *config.Config,
	logger logging.Logger,
	facadeTimeout time.Duration,
	laserOverride s.TimedLaser,
	odometerOverride s.TimedOdometer,
) (*PoseGraphService, error) {
	ctx, span := trace.StartSpan(ctx, "viamposegraph::PoseGraphService::New")
	defer span.End()

	if _, err := svcConfig.Validate(""); err != nil {
		return nil, err
	}

	optionalConfigParams, err := config.GetOptionalParameters(
		svcConfig,
		defaultLaserDataFrequencyHz,
		defaultOdometerDataFrequencyHz,
		logger,
	)
	if err != nil {
		return nil, err
	}

	algoConfig, err := config.ParseAlgoConfig(svcConfig.ConfigParams, logger)
	if err != nil {
		return nil, err
	}

	timedLaser, timedOdometer := laserOverride, odometerOverride
	if timedLaser == nil || timedOdometer == nil {
		dataset, err := s.LoadDataset(svcConfig.Dataset)
		if err != nil {
			return nil, err
		}
		logger.Infow("loaded dataset", "path", svcConfig.Dataset,
			"laser_readings", len(dataset.Laser), "odometer_readings", len(dataset.Odometry))
		if timedLaser == nil {
			timedLaser = dataset.NewLaser(optionalConfigParams.LaserDataFrequencyHz)
		}
		if timedOdometer == nil {
			timedOdometer = dataset.NewOdometer(optionalConfigParams.OdometerDataFrequencyHz)
		}
	}

	if err := os.MkdirAll(svcConfig.DataDirectory, dataDirectoryPerm); err != nil {
		return nil, errors.Wrapf(err, "creating data directory %q", svcConfig.DataDirectory)
	}

	engine, err := posegraph.New(
		algoConfig,
		scanmatch.NewICP(algoConfig.ScanMatch, logger),
		solver.Factory(algoConfig.Solver, logger),
		logger,
	)
	if err != nil {
		return nil, err
	}

	// Need to be able to shut down the sensor process before the facade
	cancelSensorProcessCtx, cancelSensorProcessFunc := context.WithCancel(context.Background())
	cancelFacadeCtx, cancelFacadeFunc := context.WithCancel(context.Background())

	svc := &PoseGraphService{
		laser:                   timedLaser,
		odometer:                timedOdometer,
		online:                  timedLaser.DataFrequencyHz() != 0,
		dataDirectory:           svcConfig.DataDirectory,
		optimizationMode:        algoConfig.OptimizationMode,
		facadeTimeout:           facadeTimeout,
		cancelSensorProcessFunc: cancelSensorProcessFunc,
		cancelFacadeFunc:        cancelFacadeFunc,
		logger:                  logger,
	}

	defer func() {
		if err != nil {
			logger.Errorw("New() hit error, closing...", "error", err)
			if err := svc.Close(ctx); err != nil {
				logger.Errorw("error closing out after error", "error", err)
			}
		}
	}()

	if svc.online {
		if err = validateSensors(cancelSensorProcessCtx, svc); err != nil {
			return nil, err
		}
	}

	pf := pgfacade.New(engine)
	pf.Start(cancelFacadeCtx, &svc.facadeWorkers)
	svc.pgfacade = &pf

	initSensorProcesses(cancelSensorProcessCtx, svc)

	logger.Infow("started pose graph SLAM", "online", svc.online, "optimization_mode", svc.optimizationMode)
	return svc, nil
}

// validateSensors checks that both live sensors return data before any processing starts.
func validateSensors(ctx context.Context, svc *PoseGraphService) error {
	if err := s.ValidateGetData(
		ctx,
		func(ctx context.Context) error {
			_, err := svc.laser.TimedLaserReading(ctx)
			return err
		},
		sensorValidationMaxTimeout,
		sensorValidationInterval,
		svc.logger); err != nil {
		return errors.Wrap(err, "failed to get data from laser")
	}

	if err := s.ValidateGetData(
		ctx,
		func(ctx context.Context) error {
			_, err := svc.odometer.TimedOdometerReading(ctx)
			return err
		},
		sensorValidationMaxTimeout,
		sensorValidationInterval,
		svc.logger); err != nil {
		return errors.Wrap(err, "failed to get data from odometer")
	}
	return nil
}

// PoseGraphService is the structure of the pose graph SLAM service.
type PoseGraphService struct {
	mu       sync.Mutex
	closed   bool
	laser    s.TimedLaser
	odometer s.TimedOdometer
	online   bool

	dataDirectory    string
	optimizationMode config.OptimizationMode

	pgfacade      pgfacade.Interface
	facadeTimeout time.Duration

	cancelSensorProcessFunc func()
	cancelFacadeFunc        func()
	logger                  logging.Logger
	sensorProcessWorkers    sync.WaitGroup
	facadeWorkers           sync.WaitGroup

	jobDone atomic.Bool

	finalizeMu sync.Mutex
	finalized  bool

	postprocessMu    sync.Mutex
	postprocessed    bool
	postprocessTasks []postprocess.Task
}

func (svc *PoseGraphService) isClosed() bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.closed
}

// Position returns the current robot pose in millimetres with an orientation vector in degrees.
func (svc *PoseGraphService) Position(ctx context.Context) (spatialmath.Pose, error) {
	ctx, span := trace.StartSpan(ctx, "viamposegraph::PoseGraphService::Position")
	defer span.End()

	pose, err := svc.Pose2D(ctx)
	if err != nil {
		return nil, err
	}
	return pose.ToSpatialmath(), nil
}

// Pose2D returns the current robot pose in metres and radians.
func (svc *PoseGraphService) Pose2D(ctx context.Context) (pose2d.Pose, error) {
	if svc.isClosed() {
		svc.logger.Warn("Position called after closed")
		return pose2d.Pose{}, ErrClosed
	}
	return svc.pgfacade.Position(ctx, svc.facadeTimeout)
}

// PointCloudMap returns a callback function which will return the next chunk of the current map encoded
// as a binary PCD. Postprocessing edits are applied when postprocessing is enabled.
func (svc *PoseGraphService) PointCloudMap(ctx context.Context) (func() ([]byte, error), error) {
	ctx, span := trace.StartSpan(ctx, "viamposegraph::PoseGraphService::PointCloudMap")
	defer span.End()

	if svc.isClosed() {
		svc.logger.Warn("PointCloudMap called after closed")
		return nil, ErrClosed
	}

	mapPoints, added, err := svc.currentMap(ctx)
	if err != nil {
		return nil, err
	}

	pcd, err := dataprocess.EncodePCD(mapPoints, added)
	if err != nil {
		return nil, err
	}
	return toChunkedFunc(pcd), nil
}

// currentMap fetches the map and applies the postprocessing tasks when enabled.
func (svc *PoseGraphService) currentMap(ctx context.Context) ([]r2.Point, []r2.Point, error) {
	mapPoints, err := svc.pgfacade.PointCloudMap(ctx, svc.facadeTimeout)
	if err != nil {
		return nil, nil, err
	}

	svc.postprocessMu.Lock()
	defer svc.postprocessMu.Unlock()
	if !svc.postprocessed {
		return mapPoints, nil, nil
	}
	kept, added := postprocess.Apply(mapPoints, svc.postprocessTasks)
	return kept, added, nil
}

// Nodes returns a snapshot of the pose graph nodes.
func (svc *PoseGraphService) Nodes(ctx context.Context) ([]posegraph.Node, error) {
	ctx, span := trace.StartSpan(ctx, "viamposegraph::PoseGraphService::Nodes")
	defer span.End()

	if svc.isClosed() {
		svc.logger.Warn("Nodes called after closed")
		return nil, ErrClosed
	}
	return svc.pgfacade.Nodes(ctx, svc.facadeTimeout)
}

func toChunkedFunc(b []byte) func() ([]byte, error) {
	chunk := make([]byte, chunkSizeBytes)

	reader := bytes.NewReader(b)

	f := func() ([]byte, error) {
		bytesRead, err := reader.Read(chunk)
		if err != nil {
			return nil, err
		}
		return chunk[:bytesRead], err
	}
	return f
}

// finalize runs the final optimization once and exports the node poses before and after it.
// Later calls are no-ops once a non-empty graph has been finalized. In online optimization mode
// there is no final optimization, so nothing is run or exported.
func (svc *PoseGraphService) finalize(ctx context.Context, timeout time.Duration) error {
	ctx, span := trace.StartSpan(ctx, "viamposegraph::PoseGraphService::finalize")
	defer span.End()

	if svc.optimizationMode == config.OnlineMode {
		svc.logger.Info("online optimization mode has no final optimization, node poses are unchanged")
		return nil
	}

	svc.finalizeMu.Lock()
	defer svc.finalizeMu.Unlock()
	if svc.finalized {
		svc.logger.Debug("finalize called after the graph was already finalized")
		return nil
	}

	before, err := svc.pgfacade.Nodes(ctx, timeout)
	if err != nil {
		return err
	}

	if err := svc.pgfacade.Finalize(ctx, timeout); err != nil {
		return err
	}
	// an empty graph is not finalized by the engine either
	svc.finalized = len(before) > 0

	svc.writeNodePoses(before, optimBeforeFilename)
	after, err := svc.pgfacade.Nodes(ctx, timeout)
	if err != nil {
		svc.logger.Warnw("could not read node poses after final optimization", "error", err)
		return nil
	}
	svc.writeNodePoses(after, optimAfterFilename)
	return nil
}

func (svc *PoseGraphService) writeNodePoses(nodes []posegraph.Node, filename string) {
	path := filepath.Join(svc.dataDirectory, filename)
	if err := dataprocess.WriteNodePosesCSV(nodes, path); err != nil {
		svc.logger.Warnw("failed to write node poses", "file", path, "error", err)
		return
	}
	svc.logger.Debugw("wrote node poses", "file", path, "nodes", len(nodes))
}

// saveMap writes the current map as a timestamped PCD in the data directory.
func (svc *PoseGraphService) saveMap(ctx context.Context) (string, error) {
	mapPoints, added, err := svc.currentMap(ctx)
	if err != nil {
		return "", err
	}
	cloud, err := dataprocess.MapToPointCloud(mapPoints, added)
	if err != nil {
		return "", err
	}
	filename := dataprocess.CreateTimestampFilename(svc.dataDirectory, mapFilePrefix, ".pcd", time.Now())
	if err := dataprocess.WritePCDToFile(cloud, filename); err != nil {
		return "", err
	}
	return filename, nil
}

// DoCommand receives arbitrary commands.
func (svc *PoseGraphService) DoCommand(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	ctx, span := trace.StartSpan(ctx, "viamposegraph::PoseGraphService::DoCommand")
	defer span.End()

	if svc.isClosed() {
		svc.logger.Warn("DoCommand called after closed")
		return nil, ErrClosed
	}

	if _, ok := req[jobDoneCommand]; ok {
		return map[string]interface{}{jobDoneCommand: svc.jobDone.Load()}, nil
	}

	if _, ok := req[finalizeCommand]; ok {
		if err := svc.finalize(ctx, svc.facadeTimeout); err != nil {
			return nil, err
		}
		return map[string]interface{}{finalizeCommand: successResponse}, nil
	}

	if _, ok := req[saveMapCommand]; ok {
		filename, err := svc.saveMap(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{saveMapCommand: filename}, nil
	}

	svc.postprocessMu.Lock()
	defer svc.postprocessMu.Unlock()

	if _, ok := req[postprocess.ToggleCommand]; ok {
		svc.postprocessed = !svc.postprocessed
		if svc.postprocessed {
			return map[string]interface{}{postprocess.ToggleCommand: postprocessEnabledResponse}, nil
		}
		return map[string]interface{}{postprocess.ToggleCommand: postprocessDisabledResponse}, nil
	}

	if points, ok := req[postprocess.AddCommand]; ok {
		task, err := postprocess.ParseDoCommand(points, postprocess.Add)
		if err != nil {
			return nil, err
		}
		svc.postprocessTasks = append(svc.postprocessTasks, task)
		return map[string]interface{}{postprocess.AddCommand: successResponse}, nil
	}

	if points, ok := req[postprocess.RemoveCommand]; ok {
		task, err := postprocess.ParseDoCommand(points, postprocess.Remove)
		if err != nil {
			return nil, err
		}
		svc.postprocessTasks = append(svc.postprocessTasks, task)
		return map[string]interface{}{postprocess.RemoveCommand: successResponse}, nil
	}

	if _, ok := req[postprocess.UndoCommand]; ok {
		if len(svc.postprocessTasks) == 0 {
			return nil, ErrNothingToUndo
		}
		svc.postprocessTasks = svc.postprocessTasks[:len(svc.postprocessTasks)-1]
		return map[string]interface{}{postprocess.UndoCommand: successResponse}, nil
	}

	return nil, viamgrpc.UnimplementedError
}

// Close out of all slam related processes. An offline session is finalized before the facade stops.
func (svc *PoseGraphService) Close(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		svc.logger.Warn("Close() called multiple times")
		return nil
	}

	svc.logger.Info("Closing pose graph module")

	// stop sensor process workers
	svc.cancelSensorProcessFunc()
	svc.sensorProcessWorkers.Wait()

	// stopping an offline session runs the final optimization on whatever was collected
	if svc.optimizationMode == config.OfflineMode && svc.pgfacade != nil {
		if err := svc.finalize(ctx, svc.facadeTimeout); err != nil {
			svc.logger.Errorw("failed to finalize while closing", "error", err)
		}
	}

	// stop facade workers
	svc.cancelFacadeFunc()
	svc.facadeWorkers.Wait()
	svc.closed = true

	svc.logger.Info("Closing complete")
	return nil
}
