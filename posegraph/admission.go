package posegraph

import (
	"github.com/viam-modules/viam-posegraph/pose2d"
)

// admissionPolicy decides when enough motion has accumulated to create a node.
type admissionPolicy struct {
	minTranslation float64
	minAngle       float64
}

// shouldAdmit compares the cumulative translation and the heading change since the last node
// against the thresholds. Only the translation counter is reset on admission; the heading change
// is recomputed from the stored odometry every call.
func (p admissionPolicy) shouldAdmit(odom *odometryTracker) bool {
	angleDiff := pose2d.AngleDist(odom.lastRaw.Angle, odom.lastNodeOdom.Angle)
	if odom.cumulativeTranslation > p.minTranslation || angleDiff > p.minAngle {
		odom.cumulativeTranslation = 0
		return true
	}
	return false
}
