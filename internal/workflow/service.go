// Package workflow owns every read and write of maintenance requests made on
// behalf of a signed-in user.
//
// Writes go through mutate: it resolves the caller, holds the in-flight guard
// for (caller, request), asks the operation for one patch, writes it, and then
// applies the follow-up rules. The only follow-ups are automatic completion
// when a write makes both confirmation flags true, and best-effort photo
// removal when a request becomes completed.
package workflow

import (
	"context"
	"fmt"
	"time"

	"hostelcare/internal/access"
	"hostelcare/internal/inflight"
	"hostelcare/internal/models"
	"hostelcare/internal/session"
	"hostelcare/internal/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type PhotoStore interface {
	Upload(ctx context.Context, data []byte, ownerID string) (string, error)
	Delete(ctx context.Context, url string) (bool, error)
}

type Deps struct {
	Requests  store.RequestStore
	Admins    store.AdminStore
	Sessions  session.Provider
	Access    *access.Partitioner
	Photos    PhotoStore
	Guard     inflight.Guard
	Log       *zap.Logger
	ListLimit int
}

type Service struct {
	requests  store.RequestStore
	admins    store.AdminStore
	sessions  session.Provider
	access    *access.Partitioner
	photos    PhotoStore
	guard     inflight.Guard
	log       *zap.Logger
	validate  *validator.Validate
	listLimit int
	now       func() time.Time
}

func New(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	guard := deps.Guard
	if guard == nil {
		guard = inflight.NewMemory()
	}
	limit := deps.ListLimit
	if limit <= 0 {
		limit = 1000
	}
	return &Service{
		requests:  deps.Requests,
		admins:    deps.Admins,
		sessions:  deps.Sessions,
		access:    deps.Access,
		photos:    deps.Photos,
		guard:     guard,
		log:       log,
		validate:  newValidator(),
		listLimit: limit,
		now:       time.Now,
	}
}

// Identity is the resolved caller.
type Identity struct {
	User    session.User  `json:"user"`
	IsAdmin bool          `json:"is_admin"`
	Admin   *models.Admin `json:"admin,omitempty"`
}

func (s *Service) Identity(ctx context.Context) (Identity, error) {
	user, ok := s.sessions.CurrentUser(ctx)
	if !ok {
		return Identity{}, store.ErrUnauthenticated
	}
	admin, found, err := s.admins.LookupAdmin(ctx, user.Email)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup admin: %w", err)
	}
	identity := Identity{User: user}
	if found {
		identity.IsAdmin = true
		identity.Admin = &admin
	}
	return identity, nil
}

func (s *Service) RequireAdmin(ctx context.Context) (Identity, error) {
	identity, err := s.Identity(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !identity.IsAdmin {
		return Identity{}, store.ErrAccessDenied
	}
	return identity, nil
}

func (s *Service) load(ctx context.Context, id string) (models.MaintenanceRequest, error) {
	request, found, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	if !found {
		return models.MaintenanceRequest{}, store.ErrRequestNotFound
	}
	return request, nil
}

func isOwner(identity Identity, request models.MaintenanceRequest) bool {
	return identity.User.ID != "" && identity.User.ID == request.UserID
}

func isRequester(identity Identity, request models.MaintenanceRequest) bool {
	return isOwner(identity, request) || session.SameEmail(identity.User.Email, request.Email)
}

// adminCanAct reports whether the caller is an admin whose hostel partition
// covers the request.
func (s *Service) adminCanAct(ctx context.Context, identity Identity, request models.MaintenanceRequest) bool {
	if !identity.IsAdmin || identity.Admin == nil {
		return false
	}
	ok, err := s.access.CanAccess(ctx, *identity.Admin, request.Building)
	if err != nil {
		s.log.Warn("hostel access denied on lookup failure",
			zap.String("admin", identity.Admin.EmailID),
			zap.String("building", request.Building),
			zap.Error(err))
	}
	return ok
}

func (s *Service) requireAdminFor(ctx context.Context, identity Identity, request models.MaintenanceRequest) error {
	if !s.adminCanAct(ctx, identity, request) {
		return store.ErrAccessDenied
	}
	return nil
}

type mutation func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error)

func (s *Service) mutate(ctx context.Context, id string, fn mutation) (models.MaintenanceRequest, error) {
	identity, err := s.Identity(ctx)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}

	release, err := s.guard.Acquire(ctx, inflight.Key(identity.User.ID, id))
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	defer release()

	current, err := s.load(ctx, id)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}

	patch, event, err := fn(identity, current)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	if patch.Empty() {
		return current, nil
	}
	if event.Actor == "" {
		event.Actor = identity.User.Email
	}

	updated, err := s.requests.UpdateRequest(ctx, id, patch, event)
	if err != nil {
		return models.MaintenanceRequest{}, fmt.Errorf("update request %s: %w", id, err)
	}
	return s.afterWrite(ctx, identity, current, updated)
}

func (s *Service) afterWrite(ctx context.Context, identity Identity, before, after models.MaintenanceRequest) (models.MaintenanceRequest, error) {
	if !before.BothConfirmed() && after.BothConfirmed() && after.Status != models.StatusCompleted {
		completed, err := s.requests.UpdateRequest(ctx, after.ID, store.RequestPatch{
			Status: store.StringPtr(models.StatusCompleted),
		}, store.EventInput{
			Type:    store.EventCompleted,
			Actor:   identity.User.Email,
			Payload: map[string]any{"from": after.Status, "reason": "both_confirmed"},
		})
		if err != nil {
			return after, fmt.Errorf("auto complete %s: %w", after.ID, err)
		}
		s.log.Info("request completed by confirmation", zap.String("request_id", after.ID))
		after = completed
	}

	if before.Status != models.StatusCompleted && after.Status == models.StatusCompleted && after.HasImage {
		after = s.dropPhoto(ctx, identity, after)
	}
	return after, nil
}

// dropPhoto deletes the stored object and clears the reference. Failures are
// logged and leave the request as it was.
func (s *Service) dropPhoto(ctx context.Context, identity Identity, request models.MaintenanceRequest) models.MaintenanceRequest {
	if s.photos == nil || request.ImageURL == nil {
		return request
	}
	ok, err := s.photos.Delete(ctx, *request.ImageURL)
	if err != nil || !ok {
		s.log.Warn("photo delete on completion failed", zap.String("request_id", request.ID), zap.Bool("deleted", ok), zap.Error(err))
		if err != nil {
			return request
		}
	}
	cleared, err := s.requests.UpdateRequest(ctx, request.ID, store.RequestPatch{
		HasImage:       store.BoolPtr(false),
		ImageURL:       store.StringPtr(""),
		ExpectImageURL: *request.ImageURL,
	}, store.EventInput{
		Type:    store.EventPhotoRemoved,
		Actor:   identity.User.Email,
		Payload: map[string]any{"reason": "completed"},
	})
	if err != nil {
		s.log.Warn("clear photo reference failed", zap.String("request_id", request.ID), zap.Error(err))
		return request
	}
	return cleared
}
