package posegraph

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/telemetry"
)

// SLAM is the pose graph engine. It is not safe for concurrent use: callers must serialize every
// method, as the pgfacade package does.
type SLAM struct {
	cfg       config.AlgoConfig
	logger    logging.Logger
	odom      odometryTracker
	admission admissionPolicy
	graph     graph
	optimizer optimizer
}

// New creates an engine. newSolver is called once for online mode and once per finalize in offline mode.
func New(cfg config.AlgoConfig, matcher ScanMatcher, newSolver SolverFactory, logger logging.Logger) (*SLAM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid algorithm config")
	}
	if matcher == nil {
		return nil, errors.New("a scan matcher is required")
	}
	if newSolver == nil {
		return nil, errors.New("a solver factory is required")
	}

	opt, err := newOptimizer(cfg.OptimizationMode, newConstraintBuilder(cfg, matcher, logger), newSolver, logger)
	if err != nil {
		return nil, err
	}

	return &SLAM{
		cfg:    cfg,
		logger: logger,
		admission: admissionPolicy{
			minTranslation: cfg.MinTranslationBetweenNodes,
			minAngle:       cfg.MinAngleBetweenNodes,
		},
		optimizer: opt,
	}, nil
}

// ObserveOdometry records a raw odometry reading.
func (s *SLAM) ObserveOdometry(loc r2.Point, angle float64) {
	s.odom.observe(loc, angle)
}

// OdometryInitialized reports whether any odometry reading has been observed.
func (s *SLAM) OdometryInitialized() bool {
	return s.odom.initialized
}

// ObserveLaser admits a new node when enough motion has accumulated since the last one, builds its
// constraints and hands them to the optimizer. It reports whether a node was admitted. A solver
// failure is returned and leaves the graph as it was before the call.
func (s *SLAM) ObserveLaser(ctx context.Context, scan LaserScan) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "posegraph::SLAM::ObserveLaser")
	defer span.End()

	pendingTranslation := s.odom.cumulativeTranslation
	if !s.admission.shouldAdmit(&s.odom) {
		return false, nil
	}

	node := Node{
		ID:           len(s.graph.nodes),
		OdometryPose: s.odom.lastRaw,
		PointCloud:   ScanToPointCloud(scan, s.cfg.LaserOffset),
	}
	if node.ID == 0 {
		node.EstimatedPose = s.cfg.InitialPose
	} else {
		node.EstimatedPose = s.odom.livePose(s.graph.lastNode())
	}

	if err := s.optimizer.admit(ctx, &s.graph, node); err != nil {
		s.odom.cumulativeTranslation = pendingTranslation
		return false, errors.Wrapf(err, "admitting node %d", node.ID)
	}
	s.odom.lastNodeOdom = node.OdometryPose
	telemetry.NodesAdmitted.Inc()

	s.logger.Debugw("admitted node",
		"id", node.ID, "points", len(node.PointCloud),
		"x", node.EstimatedPose.X(), "y", node.EstimatedPose.Y(), "theta", node.EstimatedPose.Angle)
	return true, nil
}

// Finalize runs the offline optimization. It is a no-op after the first successful run and in
// online mode.
func (s *SLAM) Finalize(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "posegraph::SLAM::Finalize")
	defer span.End()

	return s.optimizer.finalize(ctx, &s.graph)
}

// Finalized reports whether the offline optimization has completed.
func (s *SLAM) Finalized() bool {
	return s.optimizer.finalized()
}

// Mode returns the optimization mode the engine was created with.
func (s *SLAM) Mode() config.OptimizationMode {
	return s.cfg.OptimizationMode
}

// CurrentPose is the live pose: the odometry since the last node applied to that node's optimized pose.
// It is the identity before the first node.
func (s *SLAM) CurrentPose() pose2d.Pose {
	return s.odom.livePose(s.graph.lastNode())
}

// CurrentMap transforms every node's cloud into the map frame with the node's current estimate.
func (s *SLAM) CurrentMap() []r2.Point {
	total := 0
	for _, n := range s.graph.nodes {
		total += len(n.PointCloud)
	}
	points := make([]r2.Point, 0, total)
	for _, n := range s.graph.nodes {
		for _, p := range n.PointCloud {
			points = append(points, pose2d.TransformPoint(p, n.EstimatedPose))
		}
	}
	return points
}

// Nodes returns a copy of every node in id order.
func (s *SLAM) Nodes() []Node {
	return s.graph.snapshotNodes()
}

// Factors returns a copy of every factor submitted for the current graph.
func (s *SLAM) Factors() []Factor {
	return s.graph.snapshotFactors()
}
