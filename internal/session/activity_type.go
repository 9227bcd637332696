package session

// ActivityType classifies a recorded event. Types outside this list are
// accepted and kept in the timeline but do not touch any counter.
type ActivityType string

const (
	ActivityTaskCreated    ActivityType = "task_created"
	ActivityTaskCompleted  ActivityType = "task_completed"
	ActivityTaskInProgress ActivityType = "task_in_progress"
	ActivityTaskTodo       ActivityType = "task_todo"
	ActivityContextAdded   ActivityType = "context_added"
	ActivityDecisionMade   ActivityType = "decision_made"
	ActivityFileModified   ActivityType = "file_modified"
	ActivityFileMentioned  ActivityType = "file_mentioned"
	ActivityNote           ActivityType = "note"
)

// Apply increments the counter mapped to t and reports whether t had a
// counter at all. Unrecognized types leave c untouched so a bad event can
// never corrupt an unrelated counter.
func (t ActivityType) Apply(c *Counters) bool {
	switch t {
	case ActivityTaskCreated:
		c.TasksCreated++
	case ActivityTaskCompleted:
		c.TasksCompleted++
	case ActivityTaskInProgress:
		c.TasksInProgress++
	case ActivityTaskTodo:
		c.TasksTodo++
	case ActivityContextAdded:
		c.ContextItemsAdded++
	case ActivityDecisionMade:
		c.DecisionsMade++
	default:
		return false
	}
	return true
}

// ModifiesFile reports whether t represents a file write rather than a
// mere mention. Used by the recorder to pick which FileStat counter to bump.
func (t ActivityType) ModifiesFile() bool {
	return t == ActivityFileModified
}
