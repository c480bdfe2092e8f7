package postprocess

import (
	"fmt"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

type TestCase struct {
	msg string
	cmd interface{}
	err error
}

func TestParseDoCommand(t *testing.T) {
	for _, tc := range []TestCase{
		{
			msg: "errors if unstructuredPoints is not a slice",
			cmd: "hello",
			err: ErrPointsNotASlice,
		},
		{
			msg: "errors if unstructuredPoints is not a slice of maps",
			cmd: []interface{}{1},
			err: ErrPointNotAMap,
		},
		{
			msg: "errors if unstructuredPoints contains a point where X is not provided",
			cmd: []interface{}{map[string]interface{}{"Y": float64(2)}},
			err: ErrXNotProvided,
		},
		{
			msg: "errors if unstructuredPoints contains a point where X is not float64",
			cmd: []interface{}{map[string]interface{}{"X": 1, "Y": float64(2)}},
			err: ErrXNotFloat64,
		},
		{
			msg: "errors if unstructuredPoints contains a point where Y is not provided",
			cmd: []interface{}{map[string]interface{}{"X": float64(1)}},
			err: ErrYNotProvided,
		},
		{
			msg: "errors if unstructuredPoints contains a point where Y is not float64",
			cmd: []interface{}{map[string]interface{}{"X": float64(1), "Y": 2}},
			err: ErrYNotFloat64,
		},
	} {
		t.Run(fmt.Sprintf("%s for Add task", tc.msg), func(t *testing.T) {
			task, err := ParseDoCommand(tc.cmd, Add)
			test.That(t, err, test.ShouldBeError, tc.err)
			test.That(t, task, test.ShouldResemble, Task{})
		})

		t.Run(fmt.Sprintf("%s for Remove task", tc.msg), func(t *testing.T) {
			task, err := ParseDoCommand(tc.cmd, Remove)
			test.That(t, err, test.ShouldBeError, tc.err)
			test.That(t, task, test.ShouldResemble, Task{})
		})
	}

	t.Run("succeeds if unstructuredPoints is a slice of maps with float64 values", func(t *testing.T) {
		task, err := ParseDoCommand([]interface{}{map[string]interface{}{"X": float64(1), "Y": float64(2)}}, Remove)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, task, test.ShouldResemble, Task{Instruction: Remove, Points: []r2.Point{{X: 1, Y: 2}}})
	})
}

func TestApply(t *testing.T) {
	original := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 2.05, Y: 2}, {X: 3, Y: 3}}

	t.Run("no tasks returns a copy of the map", func(t *testing.T) {
		kept, added := Apply(original, nil)
		test.That(t, kept, test.ShouldResemble, original)
		test.That(t, len(added), test.ShouldEqual, 0)

		kept[0] = r2.Point{X: 9, Y: 9}
		test.That(t, original[0], test.ShouldResemble, r2.Point{X: 0, Y: 0})
	})

	t.Run("removal drops every point within the radius", func(t *testing.T) {
		kept, _ := Apply(original, []Task{{Instruction: Remove, Points: []r2.Point{{X: 2, Y: 2}, {X: 3, Y: 3}}}})
		test.That(t, kept, test.ShouldResemble, []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})
	})

	t.Run("added points are kept apart and can be removed by later tasks", func(t *testing.T) {
		kept, added := Apply(original, []Task{
			{Instruction: Add, Points: []r2.Point{{X: 4, Y: 4}, {X: 5, Y: 5}}},
			{Instruction: Remove, Points: []r2.Point{{X: 2, Y: 2}, {X: 4, Y: 4}}},
		})
		test.That(t, kept, test.ShouldResemble, []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 3, Y: 3}})
		test.That(t, added, test.ShouldResemble, []r2.Point{{X: 5, Y: 5}})
	})
}
