package posegraph

import (
	"math"

	"github.com/pkg/errors"

	"github.com/viam-modules/viam-posegraph/pose2d"
)

// graph is the append-only node arena and the factors submitted for it. Node ids equal their
// index in nodes.
type graph struct {
	nodes   []Node
	factors []Factor
}

func (g *graph) lastNode() *Node {
	if len(g.nodes) == 0 {
		return nil
	}
	return &g.nodes[len(g.nodes)-1]
}

// checkEstimates verifies that est holds a finite pose for every id below n.
func checkEstimates(est map[int]pose2d.Pose, n int) error {
	for id := 0; id < n; id++ {
		p, ok := est[id]
		if !ok {
			return errors.Errorf("solver returned no estimate for node %d", id)
		}
		if !finite(p.Angle) || !finite(p.Translation.X) || !finite(p.Translation.Y) {
			return errors.Errorf("solver returned a non-finite estimate for node %d", id)
		}
	}
	return nil
}

// commit appends node and its factors and resyncs every estimate. Nothing is modified unless est
// covers the whole graph including the new node.
func (g *graph) commit(node Node, factors []Factor, est map[int]pose2d.Pose) error {
	if node.ID != len(g.nodes) {
		return errors.Errorf("node id %d does not match its insertion index %d", node.ID, len(g.nodes))
	}
	if est != nil {
		if err := checkEstimates(est, len(g.nodes)+1); err != nil {
			return err
		}
	}
	g.nodes = append(g.nodes, node)
	g.factors = append(g.factors, factors...)
	if est != nil {
		g.applyEstimates(est)
	}
	return nil
}

// replace swaps in a regenerated factor set and resyncs every estimate, or changes nothing.
func (g *graph) replace(factors []Factor, est map[int]pose2d.Pose) error {
	if err := checkEstimates(est, len(g.nodes)); err != nil {
		return err
	}
	g.factors = factors
	g.applyEstimates(est)
	return nil
}

func (g *graph) applyEstimates(est map[int]pose2d.Pose) {
	for i := range g.nodes {
		g.nodes[i].EstimatedPose = est[i]
	}
}

// estimates returns the current pose of every node keyed by id.
func (g *graph) estimates() map[int]pose2d.Pose {
	est := make(map[int]pose2d.Pose, len(g.nodes))
	for _, n := range g.nodes {
		est[n.ID] = n.EstimatedPose
	}
	return est
}

func (g *graph) snapshotNodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.clone()
	}
	return out
}

func (g *graph) snapshotFactors() []Factor {
	out := make([]Factor, len(g.factors))
	for i, f := range g.factors {
		out[i] = f.clone()
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
