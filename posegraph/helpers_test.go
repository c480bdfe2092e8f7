package posegraph_test

import (
	"context"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
	"github.com/viam-modules/viam-posegraph/posegraph/inject"
)

func identityCovariance() *mat.SymDense {
	return mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// convergingMatcher echoes the guess back as a converged match.
func convergingMatcher() *inject.ScanMatcher {
	return &inject.ScanMatcher{
		MatchFunc: func(source, target []r2.Point, guess pose2d.Pose) posegraph.MatchResult {
			return posegraph.MatchResult{Converged: true, RelativePose: guess, Covariance: identityCovariance()}
		},
	}
}

func failingMatcher() *inject.ScanMatcher {
	return &inject.ScanMatcher{
		MatchFunc: func(source, target []r2.Point, guess pose2d.Pose) posegraph.MatchResult {
			return posegraph.MatchResult{}
		},
	}
}

// recordingSolver keeps the estimates it was given and returns them shifted by offset.
type recordingSolver struct {
	estimates  map[int]pose2d.Pose
	offset     r2.Point
	updates    [][]posegraph.Factor
	initials   []map[int]pose2d.Pose
	batchCalls int
}

func newRecordingSolver() *recordingSolver {
	return &recordingSolver{estimates: map[int]pose2d.Pose{}}
}

func (s *recordingSolver) Update(factors []posegraph.Factor, initial map[int]pose2d.Pose) error {
	s.updates = append(s.updates, factors)
	s.initials = append(s.initials, initial)
	for id, p := range initial {
		s.estimates[id] = p
	}
	return nil
}

func (s *recordingSolver) BatchSolve(factors []posegraph.Factor, initial map[int]pose2d.Pose) error {
	s.batchCalls++
	s.estimates = map[int]pose2d.Pose{}
	for id, p := range initial {
		s.estimates[id] = p
	}
	return nil
}

func (s *recordingSolver) EstimateAll() (map[int]pose2d.Pose, error) {
	out := make(map[int]pose2d.Pose, len(s.estimates))
	for id, p := range s.estimates {
		out[id] = pose2d.Pose{Angle: p.Angle, Translation: p.Translation.Add(s.offset)}
	}
	return out, nil
}

func factoryFor(s posegraph.Solver, calls *int) posegraph.SolverFactory {
	return func() posegraph.Solver {
		*calls++
		return s
	}
}

func testAlgoConfig(mode config.OptimizationMode) config.AlgoConfig {
	cfg := config.DefaultAlgoConfig()
	cfg.OptimizationMode = mode
	return cfg
}

func newEngine(t *testing.T, cfg config.AlgoConfig, matcher posegraph.ScanMatcher, s posegraph.Solver) *posegraph.SLAM {
	t.Helper()
	calls := 0
	engine, err := posegraph.New(cfg, matcher, factoryFor(s, &calls), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return engine
}

// testScan is a small fan of returns so every node carries a non-empty cloud.
func testScan() posegraph.LaserScan {
	return posegraph.LaserScan{
		Ranges:   []float64{1, 1.5, 2, 1.5, 1},
		RangeMin: 0.1,
		RangeMax: 10,
		AngleMin: -1,
		AngleMax: 1,
	}
}

// driveTo moves the odometry to (x, y, theta) and delivers one scan, reporting whether a node was admitted.
func driveTo(t *testing.T, engine *posegraph.SLAM, x, y, theta float64) bool {
	t.Helper()
	engine.ObserveOdometry(r2.Point{X: x, Y: y}, theta)
	admitted, err := engine.ObserveLaser(context.Background(), testScan())
	test.That(t, err, test.ShouldBeNil)
	return admitted
}

func factorsOfKind(factors []posegraph.Factor, kind posegraph.FactorKind) []posegraph.Factor {
	var out []posegraph.Factor
	for _, f := range factors {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
