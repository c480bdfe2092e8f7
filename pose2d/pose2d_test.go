package pose2d_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/viam-modules/viam-posegraph/pose2d"
)

const tolerance = 1e-6

func TestNormalizeAngle(t *testing.T) {
	t.Run("maps pi and minus pi to pi", func(t *testing.T) {
		test.That(t, pose2d.NormalizeAngle(math.Pi), test.ShouldEqual, math.Pi)
		test.That(t, pose2d.NormalizeAngle(-math.Pi), test.ShouldEqual, math.Pi)
		test.That(t, pose2d.AngleDist(pose2d.NormalizeAngle(3*math.Pi), math.Pi), test.ShouldBeLessThan, tolerance)
	})

	t.Run("wraps angles outside the range along the shortest path", func(t *testing.T) {
		test.That(t, pose2d.NormalizeAngle(2*math.Pi+0.1), test.ShouldAlmostEqual, 0.1, tolerance)
		test.That(t, pose2d.NormalizeAngle(-2*math.Pi-0.1), test.ShouldAlmostEqual, -0.1, tolerance)
		test.That(t, pose2d.NormalizeAngle(1.5*math.Pi), test.ShouldAlmostEqual, -0.5*math.Pi, tolerance)
	})

	t.Run("leaves in-range angles untouched", func(t *testing.T) {
		for _, a := range []float64{0, 0.3, -0.3, 3.1, -3.1} {
			test.That(t, pose2d.NormalizeAngle(a), test.ShouldEqual, a)
		}
	})

	t.Run("always lands in the half-open interval", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for i := 0; i < 1000; i++ {
			a := pose2d.NormalizeAngle((rng.Float64() - 0.5) * 40)
			test.That(t, a, test.ShouldBeGreaterThan, -math.Pi)
			test.That(t, a, test.ShouldBeLessThanOrEqualTo, math.Pi)
		}
	})
}

func TestAngleDist(t *testing.T) {
	test.That(t, pose2d.AngleDist(0.1, -0.1), test.ShouldAlmostEqual, 0.2, tolerance)
	test.That(t, pose2d.AngleDist(math.Pi-0.05, -math.Pi+0.05), test.ShouldAlmostEqual, 0.1, tolerance)
	test.That(t, pose2d.AngleDist(1, 1), test.ShouldEqual, 0.0)
}

func TestComposeAndExpress(t *testing.T) {
	t.Run("composing a relative pose into a rotated frame", func(t *testing.T) {
		frame := pose2d.New(1, 2, math.Pi/2)
		rel := pose2d.New(1, 0, 0)
		got := pose2d.ComposeIntoMap(rel, frame)
		test.That(t, pose2d.ApproxEqual(got, pose2d.New(1, 3, math.Pi/2), tolerance), test.ShouldBeTrue)
	})

	t.Run("expressing a map pose in a target frame", func(t *testing.T) {
		target := pose2d.New(1, 2, math.Pi/2)
		got := pose2d.ExpressInTarget(pose2d.New(1, 3, math.Pi/2), target)
		test.That(t, pose2d.ApproxEqual(got, pose2d.New(1, 0, 0), tolerance), test.ShouldBeTrue)
	})

	t.Run("round trip holds for random poses including a frame at exactly pi", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		randomPose := func() pose2d.Pose {
			return pose2d.New((rng.Float64()-0.5)*100, (rng.Float64()-0.5)*100, (rng.Float64()-0.5)*2*math.Pi)
		}
		frames := []pose2d.Pose{pose2d.New(3, -4, math.Pi), pose2d.New(0, 0, -math.Pi)}
		for i := 0; i < 500; i++ {
			frames = append(frames, randomPose())
		}
		for _, f := range frames {
			p := randomPose()
			back := pose2d.ExpressInTarget(pose2d.ComposeIntoMap(p, f), f)
			test.That(t, pose2d.ApproxEqual(back, p, tolerance), test.ShouldBeTrue)
		}
	})

	t.Run("round trip holds when the relative pose itself is at pi", func(t *testing.T) {
		p := pose2d.New(0.5, 0.25, math.Pi)
		f := pose2d.New(-2, 1, math.Pi)
		back := pose2d.ExpressInTarget(pose2d.ComposeIntoMap(p, f), f)
		test.That(t, pose2d.ApproxEqual(back, p, tolerance), test.ShouldBeTrue)
		test.That(t, back.Angle, test.ShouldAlmostEqual, math.Pi, tolerance)
	})
}

func TestTransformPoint(t *testing.T) {
	frame := pose2d.New(10, 0, math.Pi)
	got := pose2d.TransformPoint(r2.Point{X: 1, Y: 1}, frame)
	test.That(t, got.X, test.ShouldAlmostEqual, 9, tolerance)
	test.That(t, got.Y, test.ShouldAlmostEqual, -1, tolerance)
}

func TestToSpatialmath(t *testing.T) {
	p := pose2d.New(1.5, -2, math.Pi/2).ToSpatialmath()
	test.That(t, p.Point().X, test.ShouldAlmostEqual, 1500, tolerance)
	test.That(t, p.Point().Y, test.ShouldAlmostEqual, -2000, tolerance)
	ov := p.Orientation().OrientationVectorDegrees()
	test.That(t, ov.OZ, test.ShouldAlmostEqual, 1, tolerance)
	test.That(t, ov.Theta, test.ShouldAlmostEqual, 90, 1e-4)
}
