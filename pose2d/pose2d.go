// Package pose2d implements planar poses and the frame algebra relating node, map and target frames.
package pose2d

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/spatialmath"
)

// metersToMillimeters converts the planar pose units to the units rdk poses are reported in.
const metersToMillimeters = 1000.0

// Pose is a rigid planar transform. Angle is in radians and always lies in (-π, π].
type Pose struct {
	Angle       float64
	Translation r2.Point
}

// New returns a pose at (x, y) with heading theta, normalizing theta.
func New(x, y, theta float64) Pose {
	return Pose{Angle: NormalizeAngle(theta), Translation: r2.Point{X: x, Y: y}}
}

// Identity returns the pose with zero translation and zero rotation.
func Identity() Pose {
	return Pose{}
}

// X returns the x component of the translation.
func (p Pose) X() float64 {
	return p.Translation.X
}

// Y returns the y component of the translation.
func (p Pose) Y() float64 {
	return p.Translation.Y
}

// NormalizeAngle maps any angle to (-π, π] along the shortest wrap-around.
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return math.NaN()
	}
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// AngleDist returns the shortest angular distance between a and b, in [0, π].
func AngleDist(a, b float64) float64 {
	return math.Abs(NormalizeAngle(a - b))
}

// Rotate rotates v by angle radians counter-clockwise.
func Rotate(v r2.Point, angle float64) r2.Point {
	s, c := math.Sincos(angle)
	return r2.Point{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y}
}

// ComposeIntoMap expresses a pose given relative to src in the frame src is expressed in.
func ComposeIntoMap(rel, src Pose) Pose {
	return Pose{
		Angle:       NormalizeAngle(src.Angle + rel.Angle),
		Translation: Rotate(rel.Translation, src.Angle).Add(src.Translation),
	}
}

// ExpressInTarget expresses a map-frame pose relative to target. It inverts ComposeIntoMap.
func ExpressInTarget(inMap, target Pose) Pose {
	return Pose{
		Angle:       NormalizeAngle(inMap.Angle - target.Angle),
		Translation: Rotate(inMap.Translation.Sub(target.Translation), -target.Angle),
	}
}

// TransformPoint moves a point captured in frame into the frame that frame is expressed in.
func TransformPoint(p r2.Point, frame Pose) r2.Point {
	return Rotate(p, frame.Angle).Add(frame.Translation)
}

// ToSpatialmath converts the pose into an rdk pose in millimetres, rotated about +Z.
func (p Pose) ToSpatialmath() spatialmath.Pose {
	return spatialmath.NewPose(
		r3.Vector{X: p.Translation.X * metersToMillimeters, Y: p.Translation.Y * metersToMillimeters},
		&spatialmath.OrientationVectorDegrees{OZ: 1, Theta: p.Angle * 180 / math.Pi},
	)
}

// ApproxEqual reports whether two poses agree within tol on every component, comparing angles
// along the shortest wrap-around.
func ApproxEqual(a, b Pose, tol float64) bool {
	return math.Abs(a.Translation.X-b.Translation.X) <= tol &&
		math.Abs(a.Translation.Y-b.Translation.Y) <= tol &&
		AngleDist(a.Angle, b.Angle) <= tol
}
