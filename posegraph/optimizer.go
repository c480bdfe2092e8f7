package posegraph

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/telemetry"
)

// optimizer is the mode specific strategy deciding when factors reach the solver.
type optimizer interface {
	// admit commits node to g, or leaves g untouched and returns an error.
	admit(ctx context.Context, g *graph, node Node) error
	// finalize runs the end of session optimization, if the mode has one.
	finalize(ctx context.Context, g *graph) error
	// finalized reports whether finalize has already completed.
	finalized() bool
}

func newOptimizer(
	mode config.OptimizationMode,
	builder *constraintBuilder,
	newSolver SolverFactory,
	logger logging.Logger,
) (optimizer, error) {
	switch mode {
	case config.OnlineMode:
		return &onlineOptimizer{builder: builder, newSolver: newSolver, solver: newSolver(), logger: logger}, nil
	case config.OfflineMode:
		return &offlineOptimizer{builder: builder, newSolver: newSolver, logger: logger}, nil
	default:
		return nil, errors.Errorf("unknown optimization mode %q", mode)
	}
}

// onlineOptimizer submits every admission to the solver incrementally and resyncs all poses.
type onlineOptimizer struct {
	builder   *constraintBuilder
	newSolver SolverFactory
	solver    Solver
	// stale is set when the solver may hold state the graph does not.
	stale  bool
	logger logging.Logger
}

func (o *onlineOptimizer) admit(ctx context.Context, g *graph, node Node) error {
	ctx, span := trace.StartSpan(ctx, "posegraph::onlineOptimizer::admit")
	defer span.End()

	if o.stale {
		if err := o.rebuild(g); err != nil {
			return err
		}
	}

	var factors []Factor
	if node.ID == 0 {
		prior, err := o.builder.priorFactor(node)
		if err != nil {
			return err
		}
		factors = []Factor{prior}
	} else {
		cons, err := o.builder.build(ctx, g.nodes, node)
		if err != nil {
			return err
		}
		factors = cons.Factors
	}

	start := time.Now()
	err := o.solver.Update(factors, map[int]pose2d.Pose{node.ID: node.EstimatedPose})
	telemetry.SolverDuration.WithLabelValues(string(config.OnlineMode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return errors.Wrapf(err, "solver update for node %d", node.ID)
	}

	est, err := o.solver.EstimateAll()
	if err == nil {
		err = g.commit(node, factors, est)
	}
	if err != nil {
		// the solver already holds node, so bring it back in line with the committed graph
		o.stale = true
		if rebuildErr := o.rebuild(g); rebuildErr != nil {
			o.logger.Warnw("could not rebuild solver, retrying on the next admission", "error", rebuildErr)
		}
		return errors.Wrapf(err, "committing node %d", node.ID)
	}
	countFactors(factors)
	return nil
}

// rebuild replaces the solver with a fresh one holding only the committed graph.
func (o *onlineOptimizer) rebuild(g *graph) error {
	solver := o.newSolver()
	if len(g.nodes) > 0 {
		if err := solver.BatchSolve(g.factors, g.estimates()); err != nil {
			return errors.Wrap(err, "rebuilding solver from the committed graph")
		}
	}
	o.solver = solver
	o.stale = false
	o.logger.Debugw("rebuilt solver from the committed graph", "nodes", len(g.nodes), "factors", len(g.factors))
	return nil
}

// finalize is a no-op: the graph is optimized on every admission.
func (o *onlineOptimizer) finalize(ctx context.Context, g *graph) error {
	return nil
}

func (o *onlineOptimizer) finalized() bool {
	return false
}

// offlineOptimizer records nodes while streaming and solves the whole graph once on finalize.
type offlineOptimizer struct {
	builder   *constraintBuilder
	newSolver SolverFactory
	runOnce   bool
	logger    logging.Logger
}

func (o *offlineOptimizer) admit(ctx context.Context, g *graph, node Node) error {
	return g.commit(node, nil, nil)
}

// finalize regenerates every factor against the current graph with a fresh solver and solves the
// whole graph in one batch. It runs at most once; a failed run leaves the graph untouched and may be
// retried.
func (o *offlineOptimizer) finalize(ctx context.Context, g *graph) error {
	ctx, span := trace.StartSpan(ctx, "posegraph::offlineOptimizer::finalize")
	defer span.End()

	if o.runOnce {
		o.logger.Debug("offline optimization already ran, skipping")
		return nil
	}
	if len(g.nodes) == 0 {
		o.logger.Info("no nodes to optimize")
		return nil
	}

	prior, err := o.builder.priorFactor(g.nodes[0])
	if err != nil {
		return err
	}
	factors := []Factor{prior}
	loopClosures := 0
	for id := 1; id < len(g.nodes); id++ {
		cons, err := o.builder.build(ctx, g.nodes[:id], g.nodes[id])
		if err != nil {
			return err
		}
		factors = append(factors, cons.Factors...)
		loopClosures += cons.LoopClosures
	}

	solver := o.newSolver()
	start := time.Now()
	err = solver.BatchSolve(factors, g.estimates())
	telemetry.SolverDuration.WithLabelValues(string(config.OfflineMode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return errors.Wrap(err, "offline batch solve")
	}

	est, err := solver.EstimateAll()
	if err != nil {
		return errors.Wrap(err, "reading solver estimates after batch solve")
	}
	if err := g.replace(factors, est); err != nil {
		return err
	}

	o.runOnce = true
	countFactors(factors)
	telemetry.FinalizeRuns.Inc()
	o.logger.Infow("offline optimization complete",
		"nodes", len(g.nodes), "factors", len(factors), "loop_closures", loopClosures)
	return nil
}

func (o *offlineOptimizer) finalized() bool {
	return o.runOnce
}

func countFactors(factors []Factor) {
	for _, f := range factors {
		telemetry.FactorsAdded.WithLabelValues(f.Kind.String()).Inc()
	}
}
