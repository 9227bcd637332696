// Package stats builds cross-session reports from finalized sessions. It
// only ever reads immutable data: an in-flight session is excluded from
// every aggregate until it is finalized.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/devpulse/devpulse/internal/session"
	"github.com/devpulse/devpulse/internal/store"
)

// Filter selects the sessions to aggregate over.
type Filter struct {
	From      time.Time
	To        time.Time
	ProjectID string
	Tag       string
}

// Stats summarizes a set of finalized sessions.
type Stats struct {
	SessionCount  int           `json:"session_count"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	AvgScore      float64       `json:"avg_score"`

	TasksCreated       int     `json:"tasks_created"`
	TasksCompleted     int     `json:"tasks_completed"`
	TaskCompletionRate float64 `json:"task_completion_rate"`
	DecisionsMade      int     `json:"decisions_made"`
	ContextItemsAdded  int     `json:"context_items_added"`
	NetLOC             int     `json:"net_loc"`

	MostProductiveDay string   `json:"most_productive_day,omitempty"` // YYYY-MM-DD
	MostUsedModel     string   `json:"most_used_model,omitempty"`
	TopTags           []string `json:"top_tags,omitempty"`
}

// topTagCount caps how many tags a report names.
const topTagCount = 5

// Aggregator computes Stats over the persisted session history.
type Aggregator struct {
	store store.Store
}

// New creates an Aggregator reading from st.
func New(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Aggregate computes the summary for sessions matching f. Only terminal
// (ended or timed_out) sessions participate.
func (a *Aggregator) Aggregate(f Filter) (*Stats, error) {
	sessions, err := a.store.ListSessions(store.Filter{
		From:          f.From,
		To:            f.To,
		ProjectID:     f.ProjectID,
		Tag:           f.Tag,
		OnlyFinalized: true,
	})
	if err != nil {
		return nil, fmt.Errorf("loading sessions for aggregation: %w", err)
	}
	return build(sessions), nil
}

func build(sessions []*session.Session) *Stats {
	st := &Stats{SessionCount: len(sessions)}
	if len(sessions) == 0 {
		return st
	}

	var (
		scoreSum   int
		dayScores  = map[string]int{}
		modelCount = map[string]int{}
		tagCount   = map[string]int{}
	)
	for _, s := range sessions {
		st.TotalDuration += s.Duration()
		if s.Score != nil {
			scoreSum += *s.Score
			dayScores[s.StartedAt.Local().Format("2006-01-02")] += *s.Score
		}
		st.TasksCreated += s.Counters.TasksCreated
		st.TasksCompleted += s.Counters.TasksCompleted
		st.DecisionsMade += s.Counters.DecisionsMade
		st.ContextItemsAdded += s.Counters.ContextItemsAdded
		st.NetLOC += s.NetLOC()

		if s.Model != "" {
			modelCount[s.Model]++
		}
		for _, tag := range s.Tags {
			tagCount[tag]++
		}
	}

	st.AvgDuration = st.TotalDuration / time.Duration(len(sessions))
	st.AvgScore = float64(scoreSum) / float64(len(sessions))
	if st.TasksCreated > 0 {
		st.TaskCompletionRate = float64(st.TasksCompleted) / float64(st.TasksCreated)
	}

	st.MostProductiveDay = maxKey(dayScores)
	st.MostUsedModel = maxKey(modelCount)
	st.TopTags = topKeys(tagCount, topTagCount)
	return st
}

// maxKey returns the key with the highest count, breaking ties by the
// lexicographically smaller key so reports are reproducible.
func maxKey(counts map[string]int) string {
	var best string
	bestN := 0
	for k, n := range counts {
		if n > bestN || (n == bestN && bestN > 0 && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// topKeys returns up to n keys ordered by descending count, ties broken
// alphabetically.
func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
