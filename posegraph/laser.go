package posegraph

import (
	"math"

	"github.com/golang/geo/r2"
)

// LaserScan is one planar range scan. Ranges are evenly spaced from AngleMin to AngleMax inclusive.
type LaserScan struct {
	Ranges   []float64
	RangeMin float64
	RangeMax float64
	AngleMin float64
	AngleMax float64
}

// ScanToPointCloud converts the valid returns of a scan into points in the robot frame, shifted by
// the laser mount offset. Returns at or beyond the range limits are dropped. A scan with fewer than
// two samples or without a usable angular span yields an empty cloud.
func ScanToPointCloud(scan LaserScan, laserOffset r2.Point) []r2.Point {
	n := len(scan.Ranges)
	span := scan.AngleMax - scan.AngleMin
	if n < 2 || span == 0 || math.IsNaN(span) || math.IsInf(span, 0) {
		return []r2.Point{}
	}

	increment := span / float64(n-1)
	points := make([]r2.Point, 0, n)
	for i, r := range scan.Ranges {
		if math.IsNaN(r) || math.IsInf(r, 0) || r >= scan.RangeMax || r <= scan.RangeMin {
			continue
		}
		s, c := math.Sincos(scan.AngleMin + float64(i)*increment)
		points = append(points, r2.Point{X: r*c + laserOffset.X, Y: r*s + laserOffset.Y})
	}
	return points
}
