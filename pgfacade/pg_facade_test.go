package pgfacade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"
	"go.viam.com/test"

	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
	s "github.com/viam-modules/viam-posegraph/sensors"
)

const (
	timeoutErrMessage = "timeout reading from pose graph"
	testTimeout       = 5 * time.Second
)

var _ Engine = (*posegraph.SLAM)(nil)

// startFacade runs a facade over engine until the returned func is called.
func startFacade(engine Engine) (*PoseGraphFacade, func()) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	activeBackgroundWorkers := sync.WaitGroup{}
	pf := New(engine)
	pf.Start(cancelCtx, &activeBackgroundWorkers)
	return &pf, func() {
		cancelFunc()
		activeBackgroundWorkers.Wait()
	}
}

// slowEngine blocks every call for longer than the short test timeout.
func slowEngine() *EngineMock {
	block := func() { time.Sleep(50 * time.Millisecond) }
	return &EngineMock{
		ObserveOdometryFunc: func(loc r2.Point, angle float64) { block() },
		ObserveLaserFunc: func(ctx context.Context, scan posegraph.LaserScan) (bool, error) {
			block()
			return true, nil
		},
		FinalizeFunc:    func(ctx context.Context) error { block(); return nil },
		CurrentPoseFunc: func() pose2d.Pose { block(); return pose2d.Identity() },
		CurrentMapFunc:  func() []r2.Point { block(); return nil },
		NodesFunc:       func() []posegraph.Node { block(); return nil },
	}
}

func TestRequest(t *testing.T) {
	testErr := errors.New("error")

	t.Run("successful request", func(t *testing.T) {
		engine := &EngineMock{CurrentPoseFunc: func() pose2d.Pose { return pose2d.New(1, 2, 0.5) }}
		pf, stop := startFacade(engine)
		defer stop()

		res, err := pf.request(context.Background(), position, emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res, test.ShouldResemble, pose2d.New(1, 2, 0.5))
	})

	t.Run("failed request", func(t *testing.T) {
		engine := &EngineMock{FinalizeFunc: func(ctx context.Context) error { return testErr }}
		pf, stop := startFacade(engine)
		defer stop()

		_, err := pf.request(context.Background(), finalize, emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeError, testErr)
	})

	t.Run("request with a cancelled context", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}
		pf := New(&EngineMock{})
		pf.startGoroutine(cancelCtx, &activeBackgroundWorkers)
		cancelFunc()
		activeBackgroundWorkers.Wait()

		_, err := pf.request(cancelCtx, position, emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeError)
		expectedErr := multierr.Combine(errors.New("timeout writing to pose graph"), context.Canceled)
		test.That(t, err, test.ShouldResemble, expectedErr)
	})

	t.Run("request with a work function that takes longer than the timeout", func(t *testing.T) {
		pf, stop := startFacade(slowEngine())
		defer stop()

		_, err := pf.request(context.Background(), position, emptyRequestParams, time.Millisecond)
		test.That(t, err, test.ShouldBeError)
		expectedErr := multierr.Combine(errors.New(timeoutErrMessage), context.DeadlineExceeded)
		test.That(t, err, test.ShouldResemble, expectedErr)
	})

	t.Run("unknown request type", func(t *testing.T) {
		pf, stop := startFacade(&EngineMock{})
		defer stop()

		_, err := pf.request(context.Background(), RequestType(99), emptyRequestParams, testTimeout)
		test.That(t, err, test.ShouldBeError, errors.New("no worktype found for: 99"))
	})

	t.Run("wrongly typed params are rejected", func(t *testing.T) {
		pf, stop := startFacade(&EngineMock{})
		defer stop()

		params := map[RequestParamType]interface{}{reading: "not a reading"}
		_, err := pf.request(context.Background(), addLaserReading, params, testTimeout)
		test.That(t, err, test.ShouldNotBeNil)
		_, err = pf.request(context.Background(), addOdometerReading, params, testTimeout)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestAddOdometerReading(t *testing.T) {
	reading := s.TimedOdometerReadingResponse{Position: r2.Point{X: 1, Y: 2}, Heading: 0.3, ReadingTime: time.Now()}

	t.Run("success", func(t *testing.T) {
		var gotLoc r2.Point
		var gotAngle float64
		engine := &EngineMock{ObserveOdometryFunc: func(loc r2.Point, angle float64) {
			gotLoc, gotAngle = loc, angle
		}}
		pf, stop := startFacade(engine)
		defer stop()

		err := pf.AddOdometerReading(context.Background(), testTimeout, s.OdometerName, reading)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, gotLoc, test.ShouldResemble, r2.Point{X: 1, Y: 2})
		test.That(t, gotAngle, test.ShouldEqual, 0.3)
	})

	t.Run("times out", func(t *testing.T) {
		pf, stop := startFacade(slowEngine())
		defer stop()

		err := pf.AddOdometerReading(context.Background(), time.Millisecond, s.OdometerName, reading)
		test.That(t, err, test.ShouldBeError)
		test.That(t, err.Error(), test.ShouldContainSubstring, timeoutErrMessage)
	})

	t.Run("concurrent callers are served one at a time", func(t *testing.T) {
		inFlight, maxInFlight, calls := 0, 0, 0
		engine := &EngineMock{ObserveOdometryFunc: func(loc r2.Point, angle float64) {
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			calls++
			time.Sleep(time.Millisecond)
			inFlight--
		}}
		pf, stop := startFacade(engine)
		defer stop()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				test.That(t, pf.AddOdometerReading(context.Background(), testTimeout, s.OdometerName, reading), test.ShouldBeNil)
			}()
		}
		wg.Wait()
		test.That(t, calls, test.ShouldEqual, 10)
		test.That(t, maxInFlight, test.ShouldEqual, 1)
	})
}

func TestAddLaserReading(t *testing.T) {
	reading := s.TimedLaserReadingResponse{Scan: posegraph.LaserScan{Ranges: []float64{1, 2}, RangeMax: 10}}

	t.Run("success", func(t *testing.T) {
		var got posegraph.LaserScan
		engine := &EngineMock{ObserveLaserFunc: func(ctx context.Context, scan posegraph.LaserScan) (bool, error) {
			got = scan
			return true, nil
		}}
		pf, stop := startFacade(engine)
		defer stop()

		admitted, err := pf.AddLaserReading(context.Background(), testTimeout, s.LaserName, reading)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, admitted, test.ShouldBeTrue)
		test.That(t, got, test.ShouldResemble, reading.Scan)
	})

	t.Run("failure", func(t *testing.T) {
		engine := &EngineMock{ObserveLaserFunc: func(ctx context.Context, scan posegraph.LaserScan) (bool, error) {
			return false, errors.New("solver failed")
		}}
		pf, stop := startFacade(engine)
		defer stop()

		admitted, err := pf.AddLaserReading(context.Background(), testTimeout, s.LaserName, reading)
		test.That(t, err, test.ShouldBeError, errors.New("solver failed"))
		test.That(t, admitted, test.ShouldBeFalse)
	})

	t.Run("times out", func(t *testing.T) {
		pf, stop := startFacade(slowEngine())
		defer stop()

		_, err := pf.AddLaserReading(context.Background(), time.Millisecond, s.LaserName, reading)
		test.That(t, err.Error(), test.ShouldContainSubstring, timeoutErrMessage)
	})
}

func TestQueries(t *testing.T) {
	nodes := []posegraph.Node{{ID: 0, EstimatedPose: pose2d.Identity()}}
	mapPoints := []r2.Point{{X: 1, Y: 1}}
	engine := &EngineMock{
		CurrentPoseFunc: func() pose2d.Pose { return pose2d.New(3, 4, 0) },
		CurrentMapFunc:  func() []r2.Point { return mapPoints },
		NodesFunc:       func() []posegraph.Node { return nodes },
	}
	pf, stop := startFacade(engine)
	defer stop()

	t.Run("position", func(t *testing.T) {
		pos, err := pf.Position(context.Background(), testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos, test.ShouldResemble, pose2d.New(3, 4, 0))
	})

	t.Run("point cloud map", func(t *testing.T) {
		pc, err := pf.PointCloudMap(context.Background(), testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pc, test.ShouldResemble, mapPoints)
	})

	t.Run("nodes", func(t *testing.T) {
		ns, err := pf.Nodes(context.Background(), testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ns, test.ShouldResemble, nodes)
	})

	t.Run("queries time out behind slow work", func(t *testing.T) {
		slow, stopSlow := startFacade(slowEngine())
		defer stopSlow()

		// the first call occupies the worker, so the others fail to even hand off their work
		_, err := slow.Position(context.Background(), time.Millisecond)
		test.That(t, err.Error(), test.ShouldContainSubstring, timeoutErrMessage)
		_, err = slow.PointCloudMap(context.Background(), time.Millisecond)
		test.That(t, err.Error(), test.ShouldContainSubstring, "timeout writing to pose graph")
		_, err = slow.Nodes(context.Background(), time.Millisecond)
		test.That(t, err.Error(), test.ShouldContainSubstring, "timeout writing to pose graph")
	})
}

func TestFinalize(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		calls := 0
		engine := &EngineMock{FinalizeFunc: func(ctx context.Context) error {
			calls++
			return nil
		}}
		pf, stop := startFacade(engine)
		defer stop()

		test.That(t, pf.Finalize(context.Background(), testTimeout), test.ShouldBeNil)
		test.That(t, calls, test.ShouldEqual, 1)
	})

	t.Run("failure", func(t *testing.T) {
		engine := &EngineMock{FinalizeFunc: func(ctx context.Context) error { return errors.New("singular") }}
		pf, stop := startFacade(engine)
		defer stop()

		test.That(t, pf.Finalize(context.Background(), testTimeout), test.ShouldBeError, errors.New("singular"))
	})
}

func TestMock(t *testing.T) {
	t.Run("injected funcs take precedence", func(t *testing.T) {
		mock := Mock{
			PositionFunc: func(ctx context.Context, timeout time.Duration) (pose2d.Pose, error) {
				return pose2d.New(9, 9, 0), nil
			},
		}
		pos, err := mock.Position(context.Background(), testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos, test.ShouldResemble, pose2d.New(9, 9, 0))
	})

	t.Run("unset funcs fall back to the real facade", func(t *testing.T) {
		cancelCtx, cancelFunc := context.WithCancel(context.Background())
		activeBackgroundWorkers := sync.WaitGroup{}
		mock := Mock{PoseGraphFacade: New(&EngineMock{NodesFunc: func() []posegraph.Node { return nil }})}
		mock.Start(cancelCtx, &activeBackgroundWorkers)
		defer func() {
			cancelFunc()
			activeBackgroundWorkers.Wait()
		}()

		ns, err := mock.Nodes(context.Background(), testTimeout)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(ns), test.ShouldEqual, 0)
	})
}
