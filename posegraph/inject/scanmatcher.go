// Package inject provides dependency injected structures for mocking the pose graph collaborators.
package inject

import (
	"github.com/golang/geo/r2"

	"github.com/viam-modules/viam-posegraph/pose2d"
	"github.com/viam-modules/viam-posegraph/posegraph"
)

// ScanMatcher is an injected ScanMatcher.
type ScanMatcher struct {
	posegraph.ScanMatcher
	MatchFunc func(source, target []r2.Point, guess pose2d.Pose) posegraph.MatchResult
}

// Match calls the injected Match or the real version.
func (sm *ScanMatcher) Match(source, target []r2.Point, guess pose2d.Pose) posegraph.MatchResult {
	if sm.MatchFunc == nil {
		return sm.ScanMatcher.Match(source, target, guess)
	}
	return sm.MatchFunc(source, target, guess)
}
