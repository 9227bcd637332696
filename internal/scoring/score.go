// Package scoring computes the 0-100 productivity score assigned to a
// session at finalization. Score is a pure function of its input: identical
// counters, LOC figures, and duration always yield the identical score, so
// a finalization retry can recompute it safely.
package scoring

import (
	"time"

	"github.com/devpulse/devpulse/internal/session"
)

// Weights holds the scoring policy constants. The defaults are the fixed
// policy; they live in a struct so deployments can tune them through
// configuration without touching code.
type Weights struct {
	CompletionMax int `json:"completion_max"`

	DecisionPoints int `json:"decision_points"`
	DecisionMax    int `json:"decision_max"`

	ContextPoints int `json:"context_points"`
	ContextMax    int `json:"context_max"`

	// Net-LOC buckets. SmallChangeMax and MediumChangeMax bound the two
	// rewarded ranges; CleanupFloor bounds the rewarded negative range.
	SmallChangeMax  int `json:"small_change_max"`
	MediumChangeMax int `json:"medium_change_max"`
	CleanupFloor    int `json:"cleanup_floor"`
	CodeSmall       int `json:"code_small"`
	CodeMedium      int `json:"code_medium"`
	CodeLarge       int `json:"code_large"`
	CodeCleanup     int `json:"code_cleanup"`

	// Duration buckets, in hours.
	SweetSpotMinHours float64 `json:"sweet_spot_min_hours"`
	SweetSpotMaxHours float64 `json:"sweet_spot_max_hours"`
	DurationSweet     int     `json:"duration_sweet"`
	DurationLong      int     `json:"duration_long"`
}

// DefaultWeights returns the standard scoring policy.
func DefaultWeights() Weights {
	return Weights{
		CompletionMax:     40,
		DecisionPoints:    3,
		DecisionMax:       15,
		ContextPoints:     2,
		ContextMax:        15,
		SmallChangeMax:    500,
		MediumChangeMax:   1000,
		CleanupFloor:      -200,
		CodeSmall:         20,
		CodeMedium:        15,
		CodeLarge:         5,
		CodeCleanup:       15,
		SweetSpotMinHours: 1,
		SweetSpotMaxHours: 3,
		DurationSweet:     10,
		DurationLong:      5,
	}
}

// Input is the slice of session state the score depends on.
type Input struct {
	Counters   session.Counters
	LOCAdded   int
	LOCRemoved int
	Duration   time.Duration
}

// InputFromSession extracts the scoring input from a finalized session.
func InputFromSession(s *session.Session) Input {
	return Input{
		Counters:   s.Counters,
		LOCAdded:   s.LOCAdded,
		LOCRemoved: s.LOCRemoved,
		Duration:   s.Duration(),
	}
}

// Score computes the productivity score for in under w, clamped to [0,100].
func (w Weights) Score(in Input) int {
	total := w.completion(in.Counters) +
		w.decisions(in.Counters) +
		w.context(in.Counters) +
		w.codeOutput(in.LOCAdded-in.LOCRemoved) +
		w.duration(in.Duration)

	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

// completion rewards the ratio of completed to created tasks. A session
// that created no tasks uses a denominator of one, so it simply earns
// nothing here rather than dividing by zero.
func (w Weights) completion(c session.Counters) int {
	created := c.TasksCreated
	if created < 1 {
		created = 1
	}
	return int(float64(c.TasksCompleted) / float64(created) * float64(w.CompletionMax))
}

func (w Weights) decisions(c session.Counters) int {
	pts := c.DecisionsMade * w.DecisionPoints
	return min(pts, w.DecisionMax)
}

func (w Weights) context(c session.Counters) int {
	pts := c.ContextItemsAdded * w.ContextPoints
	return min(pts, w.ContextMax)
}

// codeOutput buckets the net line delta. Moderate additions score highest;
// a mildly negative delta is treated as cleanup work and rewarded too.
func (w Weights) codeOutput(netLOC int) int {
	switch {
	case netLOC > 0 && netLOC < w.SmallChangeMax:
		return w.CodeSmall
	case netLOC >= w.SmallChangeMax && netLOC < w.MediumChangeMax:
		return w.CodeMedium
	case netLOC >= w.MediumChangeMax:
		return w.CodeLarge
	case netLOC > w.CleanupFloor && netLOC <= 0:
		return w.CodeCleanup
	default:
		return 0
	}
}

func (w Weights) duration(d time.Duration) int {
	hours := d.Minutes() / 60
	switch {
	case hours >= w.SweetSpotMinHours && hours <= w.SweetSpotMaxHours:
		return w.DurationSweet
	case hours > w.SweetSpotMaxHours:
		return w.DurationLong
	default:
		return 0
	}
}
