package jit

import "math"

// recordInvocation counts one interpreted call. Compiled and disqualified functions are not counted.
func recordInvocation(s *State) {
	if s.compiled || s.Disqualified() {
		return
	}
	if s.hotness < math.MaxInt32 {
		s.hotness++
	}
}

// shouldCompile is true once the counter reaches both the threshold and any back-off from a failed attempt.
// The non-negative check keeps a disqualified function out forever.
func shouldCompile(s *State, threshold int32) bool {
	return !s.compiled && s.hotness >= 0 && s.hotness >= threshold && s.hotness >= s.retryAt
}

// disqualify marks s so it is never compiled again.
func disqualify(s *State) {
	s.hotness = DisqualifiedHotness
	s.retryAt = 0
}

// backOff delays the next attempt until the counter doubles.
func backOff(s *State) {
	switch {
	case s.hotness <= 0:
		s.retryAt = 1
	case s.hotness > math.MaxInt32/2:
		s.retryAt = math.MaxInt32
	default:
		s.retryAt = s.hotness * 2
	}
}
