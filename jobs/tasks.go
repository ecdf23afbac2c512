package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCanonicalizeSweep rewrites stored override keys whose module is an
	// alias into canonical form.
	TaskCanonicalizeSweep = "authz:canonicalize_sweep"
	// TaskPruneUnknown removes override rows whose key no longer matches any
	// registered module or action.
	TaskPruneUnknown = "authz:prune_unknown"
)

// MaintenancePayload carries scheduling metadata for the sweep tasks.
type MaintenancePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewCanonicalizeSweepTask constructs an Asynq task for the key rewrite sweep.
func NewCanonicalizeSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MaintenancePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCanonicalizeSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewPruneUnknownTask constructs an Asynq task for pruning dead override rows.
func NewPruneUnknownTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(MaintenancePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPruneUnknown, body, asynq.Queue(QueueDefault)), nil
}
