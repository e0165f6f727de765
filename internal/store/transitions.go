package store

import "hostelcare/internal/models"

const (
	ActionStart       = "start"
	ActionComplete    = "complete"
	ActionMarkPending = "mark_pending"
	ActionReopen      = "reopen"
)

var transitionMap = map[string][]string{
	ActionStart:       {models.StatusPending},
	ActionComplete:    {models.StatusPending, models.StatusInProgress},
	ActionMarkPending: {models.StatusInProgress},
	ActionReopen:      {models.StatusPending, models.StatusInProgress, models.StatusCompleted},
}

var transitionTarget = map[string]string{
	ActionStart:       models.StatusInProgress,
	ActionComplete:    models.StatusCompleted,
	ActionMarkPending: models.StatusPending,
	ActionReopen:      models.StatusPending,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TargetStatus returns the status an action moves a request to.
func TargetStatus(action string) (string, bool) {
	status, ok := transitionTarget[action]
	return status, ok
}
