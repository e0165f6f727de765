package workflow

import (
	"context"
	"strings"

	"hostelcare/internal/models"
	"hostelcare/internal/store"
)

// ConfirmRequester records the requester's attestation. Only the account that
// filed the request may call it; repeating it writes nothing unless a lost
// completion has to be finished.
func (s *Service) ConfirmRequester(ctx context.Context, id string) (models.MaintenanceRequest, error) {
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if !isOwner(identity, current) {
			return store.RequestPatch{}, store.EventInput{}, store.ErrAccessDenied
		}
		if current.RequesterConfirmed {
			return resumeCompletion(current)
		}
		return store.RequestPatch{RequesterConfirmed: store.BoolPtr(true)},
			store.EventInput{Type: store.EventRequesterConfirmed}, nil
	})
}

// ConfirmWorker records the admin-side attestation that work is done.
func (s *Service) ConfirmWorker(ctx context.Context, id string) (models.MaintenanceRequest, error) {
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if err := s.adminEditable(ctx, identity, current); err != nil {
			return store.RequestPatch{}, store.EventInput{}, err
		}
		if current.WorkerConfirmed {
			return resumeCompletion(current)
		}
		return store.RequestPatch{WorkerConfirmed: store.BoolPtr(true)},
			store.EventInput{Type: store.EventWorkerConfirmed}, nil
	})
}

// resumeCompletion handles a repeated confirmation. It writes nothing unless
// both flags are set but the completing write after them never landed.
func resumeCompletion(current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
	if !current.BothConfirmed() || current.Status == models.StatusCompleted {
		return store.RequestPatch{}, store.EventInput{}, nil
	}
	return store.RequestPatch{Status: store.StringPtr(models.StatusCompleted), ExpectStatus: current.Status},
		store.EventInput{Type: store.EventCompleted, Payload: map[string]any{"from": current.Status, "reason": "both_confirmed"}}, nil
}

func (s *Service) SetProgress(ctx context.Context, id string, progress int) (models.MaintenanceRequest, error) {
	if progress < 0 || progress > 100 {
		return models.MaintenanceRequest{}, fieldError("progress", "must be between 0 and 100")
	}
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if err := s.adminEditable(ctx, identity, current); err != nil {
			return store.RequestPatch{}, store.EventInput{}, err
		}
		if current.Progress == progress {
			return store.RequestPatch{}, store.EventInput{}, nil
		}
		return store.RequestPatch{Progress: store.IntPtr(progress)},
			store.EventInput{Type: store.EventProgress, Payload: map[string]any{"from": current.Progress, "to": progress}}, nil
	})
}

func (s *Service) SetPriority(ctx context.Context, id, priority string) (models.MaintenanceRequest, error) {
	priority = strings.ToLower(strings.TrimSpace(priority))
	switch priority {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
	default:
		return models.MaintenanceRequest{}, fieldError("priority", "must be one of low medium high")
	}
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if err := s.adminEditable(ctx, identity, current); err != nil {
			return store.RequestPatch{}, store.EventInput{}, err
		}
		if current.Priority == priority {
			return store.RequestPatch{}, store.EventInput{}, nil
		}
		return store.RequestPatch{Priority: store.StringPtr(priority)},
			store.EventInput{Type: store.EventPriority, Payload: map[string]any{"from": current.Priority, "to": priority}}, nil
	})
}

// Transition applies a manual admin status change. The write is conditional
// on the status it was validated against.
func (s *Service) Transition(ctx context.Context, id, action string) (models.MaintenanceRequest, error) {
	target, ok := store.TargetStatus(action)
	if !ok || action == store.ActionReopen {
		return models.MaintenanceRequest{}, fieldError("action", "unknown status action")
	}
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if err := s.adminEditable(ctx, identity, current); err != nil {
			return store.RequestPatch{}, store.EventInput{}, err
		}
		if !store.ValidTransition(action, current.Status) {
			return store.RequestPatch{}, store.EventInput{}, store.ErrInvalidState
		}
		return store.RequestPatch{Status: store.StringPtr(target), ExpectStatus: current.Status},
			store.EventInput{Type: store.EventStatus, Payload: map[string]any{"action": action, "from": current.Status, "to": target}}, nil
	})
}

// Reopen resets a request to a fresh pending state and brings it back from
// soft delete, all in one write. Without confirm it only reports that
// confirmation is needed.
func (s *Service) Reopen(ctx context.Context, id string, confirm bool) (models.MaintenanceRequest, error) {
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if !isRequester(identity, current) && !s.adminCanAct(ctx, identity, current) {
			return store.RequestPatch{}, store.EventInput{}, store.ErrAccessDenied
		}
		if !confirm {
			return store.RequestPatch{}, store.EventInput{}, ErrConfirmationRequired
		}
		patch := store.RequestPatch{
			Status:             store.StringPtr(models.StatusPending),
			RequesterConfirmed: store.BoolPtr(false),
			WorkerConfirmed:    store.BoolPtr(false),
			Progress:           store.IntPtr(0),
			IsDeleted:          store.BoolPtr(false),
		}
		event := store.EventInput{Type: store.EventReopened, Payload: map[string]any{
			"from":        current.Status,
			"was_deleted": current.IsDeleted,
		}}
		return patch, event, nil
	})
}

func (s *Service) SoftDelete(ctx context.Context, id string) (models.MaintenanceRequest, error) {
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if err := s.requireAdminFor(ctx, identity, current); err != nil {
			return store.RequestPatch{}, store.EventInput{}, err
		}
		if current.IsDeleted {
			return store.RequestPatch{}, store.EventInput{}, nil
		}
		return store.RequestPatch{IsDeleted: store.BoolPtr(true)},
			store.EventInput{Type: store.EventDeleted, Payload: map[string]any{"status": current.Status}}, nil
	})
}

// Restore clears the soft delete flag and, when resetStatus is set, puts the
// request back to pending in the same write.
func (s *Service) Restore(ctx context.Context, id string, resetStatus bool) (models.MaintenanceRequest, error) {
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if err := s.requireAdminFor(ctx, identity, current); err != nil {
			return store.RequestPatch{}, store.EventInput{}, err
		}
		var patch store.RequestPatch
		if current.IsDeleted {
			patch.IsDeleted = store.BoolPtr(false)
		}
		if resetStatus && current.Status != models.StatusPending {
			patch.Status = store.StringPtr(models.StatusPending)
		}
		if patch.Empty() {
			return patch, store.EventInput{}, nil
		}
		return patch, store.EventInput{Type: store.EventRestored, Payload: map[string]any{
			"from":         current.Status,
			"reset_status": resetStatus,
		}}, nil
	})
}

// AssignStaff records who is handling the request. An empty name clears it.
func (s *Service) AssignStaff(ctx context.Context, id, staff string) (models.MaintenanceRequest, error) {
	staff = strings.TrimSpace(staff)
	if len(staff) > 120 {
		return models.MaintenanceRequest{}, fieldError("staff", "must be at most 120 characters")
	}
	return s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if err := s.adminEditable(ctx, identity, current); err != nil {
			return store.RequestPatch{}, store.EventInput{}, err
		}
		if current.AssignedTo != nil && *current.AssignedTo == staff || current.AssignedTo == nil && staff == "" {
			return store.RequestPatch{}, store.EventInput{}, nil
		}
		return store.RequestPatch{AssignedTo: store.StringPtr(staff)},
			store.EventInput{Type: store.EventAssigned, Payload: map[string]any{"staff": staff}}, nil
	})
}

// adminEditable guards admin edits that are blocked while a request is
// soft-deleted.
func (s *Service) adminEditable(ctx context.Context, identity Identity, current models.MaintenanceRequest) error {
	if err := s.requireAdminFor(ctx, identity, current); err != nil {
		return err
	}
	if current.IsDeleted {
		return store.ErrRequestDeleted
	}
	return nil
}
