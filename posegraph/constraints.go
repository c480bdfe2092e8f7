package posegraph

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-posegraph/config"
	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/telemetry"
)

// Constraints is the set of factors generated for one node together with loop closure accounting.
type Constraints struct {
	Factors             []Factor
	SuccessiveMatched   bool
	LoopClosureAttempts int
	LoopClosures        int
	// Fallback is set when an odometry factor was added only to keep the node connected.
	Fallback bool
}

// constraintBuilder generates the factors of a new node against the nodes before it. It does not
// depend on the optimization mode.
type constraintBuilder struct {
	cfg     config.AlgoConfig
	matcher ScanMatcher
	logger  logging.Logger
}

func newConstraintBuilder(cfg config.AlgoConfig, matcher ScanMatcher, logger logging.Logger) *constraintBuilder {
	return &constraintBuilder{cfg: cfg, matcher: matcher, logger: logger}
}

// priorFactor anchors node 0 at its initial pose.
func (b *constraintBuilder) priorFactor(node Node) (Factor, error) {
	info, err := InformationFromSigmas(b.cfg.PriorSigmas)
	if err != nil {
		return Factor{}, errors.Wrap(err, "prior sigmas")
	}
	return Factor{Kind: PriorFactor, From: NoNode, To: node.ID, Measured: node.EstimatedPose, Information: info}, nil
}

// build returns the successive, odometry and loop closure factors of newNode. prior holds every
// node with an id lower than newNode.ID, in id order.
func (b *constraintBuilder) build(ctx context.Context, prior []Node, newNode Node) (Constraints, error) {
	_, span := trace.StartSpan(ctx, "posegraph::constraintBuilder::build")
	defer span.End()

	var cons Constraints
	if newNode.ID == 0 {
		return cons, nil
	}
	if len(prior) != newNode.ID {
		return cons, errors.Errorf("node %d built against %d earlier nodes", newNode.ID, len(prior))
	}
	pred := prior[newNode.ID-1]
	odomDelta := pose2d.ExpressInTarget(newNode.OdometryPose, pred.OdometryPose)

	res := b.matcher.Match(newNode.PointCloud, pred.PointCloud, odomDelta)
	if res.Converged {
		if f, ok := b.scanMatchFactor(pred.ID, newNode.ID, res); ok {
			cons.Factors = append(cons.Factors, f)
			cons.SuccessiveMatched = true
		}
	} else {
		telemetry.ScanMatchFailures.Inc()
		b.logger.Debugw("successive scan match did not converge", "from", pred.ID, "to", newNode.ID)
	}

	if b.cfg.ConsiderOdomConstraint || !cons.SuccessiveMatched {
		f, err := b.odometryFactor(pred.ID, newNode.ID, odomDelta)
		if err != nil {
			return Constraints{}, err
		}
		cons.Factors = append(cons.Factors, f)
		if !b.cfg.ConsiderOdomConstraint {
			cons.Fallback = true
			b.logger.Warnw("no scan match connects the new node, adding an odometry factor", "node", newNode.ID)
		}
	}

	if b.cfg.NonSuccessiveScanConstraints && newNode.ID > 2 {
		b.loopClosures(prior, pred, &cons)
	}
	return cons, nil
}

// loopClosures matches the predecessor against older nodes in ascending id order, skipping the two
// most recent nodes, and stops once MaxFactorsPerNode matches have converged.
func (b *constraintBuilder) loopClosures(prior []Node, pred Node, cons *Constraints) {
	if b.cfg.MaxFactorsPerNode == 0 {
		return
	}
	for _, cand := range prior[:len(prior)-2] {
		dist := cand.EstimatedPose.Translation.Sub(pred.EstimatedPose.Translation).Norm()
		if dist > b.cfg.MaxNodeDistanceForScanComparison {
			continue
		}

		cons.LoopClosureAttempts++
		telemetry.LoopClosureAttempts.Inc()
		guess := pose2d.ExpressInTarget(pred.EstimatedPose, cand.EstimatedPose)
		res := b.matcher.Match(pred.PointCloud, cand.PointCloud, guess)
		if !res.Converged {
			telemetry.ScanMatchFailures.Inc()
			continue
		}
		f, ok := b.scanMatchFactor(cand.ID, pred.ID, res)
		if !ok {
			continue
		}
		cons.Factors = append(cons.Factors, f)
		cons.LoopClosures++
		telemetry.LoopClosures.Inc()
		if cons.LoopClosures >= b.cfg.MaxFactorsPerNode {
			return
		}
	}
}

func (b *constraintBuilder) scanMatchFactor(from, to int, res MatchResult) (Factor, bool) {
	info, err := InformationFromCovariance(res.Covariance)
	if err != nil {
		b.logger.Warnw("dropping scan match factor", "from", from, "to", to, "error", err)
		return Factor{}, false
	}
	return Factor{Kind: ScanMatchFactor, From: from, To: to, Measured: res.RelativePose, Information: info}, true
}

// odometryFactor applies the linear motion model: both sigmas grow with the distance and the
// rotation travelled, and are floored at MinMotionSigma.
func (b *constraintBuilder) odometryFactor(from, to int, delta pose2d.Pose) (Factor, error) {
	mm := b.cfg.MotionModel
	trans := delta.Translation.Norm()
	rot := math.Abs(delta.Angle)
	transStd := math.Max(mm.TransErrFromTrans*trans+mm.TransErrFromRot*rot, b.cfg.MinMotionSigma)
	rotStd := math.Max(mm.RotErrFromTrans*trans+mm.RotErrFromRot*rot, b.cfg.MinMotionSigma)

	info, err := InformationFromSigmas(config.Sigmas{X: transStd, Y: transStd, Theta: rotStd})
	if err != nil {
		return Factor{}, errors.Wrapf(err, "odometry factor %d->%d", from, to)
	}
	return Factor{Kind: OdometryFactor, From: from, To: to, Measured: delta, Information: info}, nil
}
