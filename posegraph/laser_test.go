package posegraph

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestScanToPointCloud(t *testing.T) {
	offset := r2.Point{X: 0.2, Y: 0}

	t.Run("degenerate scans produce no points", func(t *testing.T) {
		for _, scan := range []LaserScan{
			{},
			{Ranges: []float64{1}, RangeMin: 0.1, RangeMax: 10, AngleMin: -1, AngleMax: 1},
			{Ranges: []float64{1, 1, 1}, RangeMin: 0.1, RangeMax: 10, AngleMin: 0.5, AngleMax: 0.5},
			{Ranges: []float64{1, 1}, RangeMin: 0.1, RangeMax: 10, AngleMin: math.NaN(), AngleMax: 1},
			{Ranges: []float64{1, 1}, RangeMin: 0.1, RangeMax: 10, AngleMin: 0, AngleMax: math.Inf(1)},
		} {
			pc := ScanToPointCloud(scan, offset)
			test.That(t, pc, test.ShouldNotBeNil)
			test.That(t, len(pc), test.ShouldEqual, 0)
		}
	})

	t.Run("every sample is placed at its own angle and shifted by the mount offset", func(t *testing.T) {
		scan := LaserScan{
			Ranges:   []float64{1, 2, 1},
			RangeMin: 0.1,
			RangeMax: 10,
			AngleMin: -math.Pi / 2,
			AngleMax: math.Pi / 2,
		}
		pc := ScanToPointCloud(scan, offset)
		test.That(t, len(pc), test.ShouldEqual, 3)
		expected := []r2.Point{{X: 0.2, Y: -1}, {X: 2.2, Y: 0}, {X: 0.2, Y: 1}}
		for i, p := range pc {
			test.That(t, p.X, test.ShouldAlmostEqual, expected[i].X, 1e-9)
			test.That(t, p.Y, test.ShouldAlmostEqual, expected[i].Y, 1e-9)
		}
	})

	t.Run("returns at the range limits or not finite are dropped", func(t *testing.T) {
		scan := LaserScan{
			Ranges:   []float64{0.1, 10, math.NaN(), math.Inf(1), 0.05, 5},
			RangeMin: 0.1,
			RangeMax: 10,
			AngleMin: 0,
			AngleMax: 1,
		}
		pc := ScanToPointCloud(scan, r2.Point{})
		test.That(t, len(pc), test.ShouldEqual, 1)
		test.That(t, pc[0].X, test.ShouldAlmostEqual, 5*math.Cos(1), 1e-9)
		test.That(t, pc[0].Y, test.ShouldAlmostEqual, 5*math.Sin(1), 1e-9)
	})
}
