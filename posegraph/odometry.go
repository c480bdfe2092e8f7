package posegraph

import (
	"github.com/golang/geo/r2"

	"github.com/viam-modules/viam-posegraph/pose2d"
)

// odometryTracker accumulates raw odometry between node admissions.
type odometryTracker struct {
	// initialized latches on the first reading. Only OdometryInitialized reads it.
	initialized bool
	// lastRaw starts at the origin, so the first reading counts its distance from there.
	lastRaw pose2d.Pose
	// lastNodeOdom is the raw odometry pose recorded when the most recent node was admitted.
	lastNodeOdom pose2d.Pose
	// cumulativeTranslation is the path length travelled since the most recent admission.
	cumulativeTranslation float64
}

// observe records a raw odometry reading.
func (o *odometryTracker) observe(loc r2.Point, angle float64) {
	o.cumulativeTranslation += loc.Sub(o.lastRaw.Translation).Norm()
	o.lastRaw = pose2d.Pose{Angle: pose2d.NormalizeAngle(angle), Translation: loc}
	o.initialized = true
}

// deltaSinceLastNode is the current raw pose expressed in the frame of the last node's raw pose.
func (o *odometryTracker) deltaSinceLastNode() pose2d.Pose {
	return pose2d.ExpressInTarget(o.lastRaw, o.lastNodeOdom)
}

// livePose applies the odometry delta since the last node on top of that node's optimized pose.
func (o *odometryTracker) livePose(lastNode *Node) pose2d.Pose {
	if lastNode == nil {
		return pose2d.Identity()
	}
	return pose2d.ComposeIntoMap(pose2d.ExpressInTarget(o.lastRaw, lastNode.OdometryPose), lastNode.EstimatedPose)
}
