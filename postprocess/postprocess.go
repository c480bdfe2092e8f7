// Package postprocess contains functionality to hand-edit pose graph point cloud maps.
package postprocess

import (
	"errors"

	"github.com/golang/geo/r2"
)

// Instruction describes the action of the postprocess step.
type Instruction int

const (
	// Add is the instruction for adding points.
	Add Instruction = iota
	// Remove is the instruction for removing points.
	Remove
)

const (
	// RemovalRadius is the distance in metres around a removed point within which map points are dropped.
	RemovalRadius = 0.1
	xKey          = "X"
	yKey          = "Y"

	// ToggleCommand can be used to turn postprocessing on and off.
	ToggleCommand = "postprocess_toggle"
	// AddCommand can be used to add points to the pointcloud map.
	AddCommand = "postprocess_add"
	// RemoveCommand can be used to remove points from the pointcloud map.
	RemoveCommand = "postprocess_remove"
	// UndoCommand can be used to undo last postprocessing step.
	UndoCommand = "postprocess_undo"
)

var (
	// ErrPointsNotASlice denotes that the points have not been properly formatted as a slice.
	ErrPointsNotASlice = errors.New("could not parse provided points as a slice")

	// ErrPointNotAMap denotes that a point has not been properly formatted as a map.
	ErrPointNotAMap = errors.New("could not parse provided point as a map")

	// ErrXNotProvided denotes that an X value was not provided.
	ErrXNotProvided = errors.New("X not provided")

	// ErrXNotFloat64 denotes that an X value is not a float64.
	ErrXNotFloat64 = errors.New("could not parse provided X as a float64")

	// ErrYNotProvided denotes that a Y value was not provided.
	ErrYNotProvided = errors.New("Y not provided")

	// ErrYNotFloat64 denotes that an Y value is not a float64.
	ErrYNotFloat64 = errors.New("could not parse provided Y as a float64")
)

// Task can be used to construct a postprocessing step. Points are in metres in the map frame.
type Task struct {
	Instruction Instruction
	Points      []r2.Point
}

// ParseDoCommand parses postprocessing DoCommands into Tasks.
func ParseDoCommand(
	unstructuredPoints interface{},
	instruction Instruction,
) (Task, error) {
	pointSlice, ok := unstructuredPoints.([]interface{})
	if !ok {
		return Task{}, ErrPointsNotASlice
	}

	task := Task{Instruction: instruction}
	for _, point := range pointSlice {
		pointMap, ok := point.(map[string]interface{})
		if !ok {
			return Task{}, ErrPointNotAMap
		}

		x, ok := pointMap[xKey]
		if !ok {
			return Task{}, ErrXNotProvided
		}

		xFloat, ok := x.(float64)
		if !ok {
			return Task{}, ErrXNotFloat64
		}

		y, ok := pointMap[yKey]
		if !ok {
			return Task{}, ErrYNotProvided
		}

		yFloat, ok := y.(float64)
		if !ok {
			return Task{}, ErrYNotFloat64
		}

		task.Points = append(task.Points, r2.Point{X: xFloat, Y: yFloat})
	}
	return task, nil
}

// Apply runs tasks in order over a map. It returns the surviving map points and, separately, the
// surviving added points so they can be told apart when exported. A removal also drops points added
// by earlier tasks.
func Apply(mapPoints []r2.Point, tasks []Task) (kept, added []r2.Point) {
	kept = append([]r2.Point(nil), mapPoints...)
	for _, task := range tasks {
		switch task.Instruction {
		case Add:
			added = append(added, task.Points...)
		case Remove:
			kept = withoutRemoved(kept, task.Points)
			added = withoutRemoved(added, task.Points)
		}
	}
	return kept, added
}

// withoutRemoved filters points lying within RemovalRadius of any removed point.
func withoutRemoved(points, removed []r2.Point) []r2.Point {
	out := points[:0]
	for _, p := range points {
		drop := false
		for _, r := range removed {
			if p.Sub(r).Norm() <= RemovalRadius {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, p)
		}
	}
	return out
}
