package solver

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
)

type (
	vec3 [3]float64
	mat3 [3][3]float64
)

func identity3() mat3 {
	return mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func toMat3(s *mat.SymDense) mat3 {
	var m mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r][c] = s.At(r, c)
		}
	}
	return m
}

func (m mat3) mulVec(v vec3) vec3 {
	var out vec3
	for r := 0; r < 3; r++ {
		out[r] = m[r][0]*v[0] + m[r][1]*v[1] + m[r][2]*v[2]
	}
	return out
}

func (m mat3) mul(n mat3) mat3 {
	var out mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = m[r][0]*n[0][c] + m[r][1]*n[1][c] + m[r][2]*n[2][c]
		}
	}
	return out
}

func (m mat3) transpose() mat3 {
	var out mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = m[c][r]
		}
	}
	return out
}

// linearize returns the error of f at x and its jacobians with respect to the From and To poses.
// For a prior the From jacobian is zero.
func linearize(f posegraph.Factor, x []pose2d.Pose, index map[int]int) (vec3, mat3, mat3) {
	z := f.Measured
	xj := x[index[f.To]]

	if f.Kind == posegraph.PriorFactor {
		e := vec3{
			xj.X() - z.X(),
			xj.Y() - z.Y(),
			pose2d.NormalizeAngle(xj.Angle - z.Angle),
		}
		return e, mat3{}, identity3()
	}

	xi := x[index[f.From]]
	dt := xj.Translation.Sub(xi.Translation)
	rel := pose2d.Rotate(dt, -xi.Angle)
	et := pose2d.Rotate(rel.Sub(z.Translation), -z.Angle)
	e := vec3{et.X, et.Y, pose2d.NormalizeAngle(xj.Angle - xi.Angle - z.Angle)}

	// R(-(theta_z + theta_i)) maps map frame differences into the measurement frame
	s, c := math.Sincos(-(z.Angle + xi.Angle))
	// derivative of R(-theta_i) applied to dt, then rotated into the measurement frame
	si, ci := math.Sincos(xi.Angle)
	dRot := pose2d.Rotate(
		r2.Point{X: -si*dt.X + ci*dt.Y, Y: -ci*dt.X - si*dt.Y},
		-z.Angle,
	)

	a := mat3{
		{-c, s, dRot.X},
		{-s, -c, dRot.Y},
		{0, 0, -1},
	}
	b := mat3{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
	return e, a, b
}

// accumulate adds the contribution of f to the normal equations h·dx = g, where g is Jᵀ·Ω·e.
func accumulate(h *mat.SymDense, g *mat.VecDense, f posegraph.Factor, x []pose2d.Pose, index map[int]int) {
	e, a, b := linearize(f, x, index)
	omega := toMat3(f.Information)

	j := index[f.To]
	bt := b.transpose()
	addBlock(h, j, j, bt.mul(omega).mul(b))
	addVec(g, j, bt.mul(omega).mulVec(e))

	if f.Kind == posegraph.PriorFactor {
		return
	}
	i := index[f.From]
	at := a.transpose()
	addBlock(h, i, i, at.mul(omega).mul(a))
	addBlock(h, i, j, at.mul(omega).mul(b))
	addVec(g, i, at.mul(omega).mulVec(e))
}

// addBlock adds m to the 3x3 block at node rows i and node columns j. Diagonal blocks are
// symmetric, so only their upper triangle is touched.
func addBlock(h *mat.SymDense, i, j int, m mat3) {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if i == j && c < r {
				continue
			}
			row, col := 3*i+r, 3*j+c
			h.SetSym(row, col, h.At(row, col)+m[r][c])
		}
	}
}

func addVec(g *mat.VecDense, i int, v vec3) {
	for r := 0; r < 3; r++ {
		g.SetVec(3*i+r, g.AtVec(3*i+r)+v[r])
	}
}
