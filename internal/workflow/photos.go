package workflow

import (
	"context"
	"fmt"

	"hostelcare/internal/models"
	"hostelcare/internal/photos"
	"hostelcare/internal/store"

	"go.uber.org/zap"
)

// AttachPhoto uploads a photo for the requester's own request and replaces any
// previous one. Completed and deleted requests take no new photos.
func (s *Service) AttachPhoto(ctx context.Context, id string, data []byte) (models.MaintenanceRequest, error) {
	if s.photos == nil {
		return models.MaintenanceRequest{}, photos.ErrNotConfigured
	}
	var uploaded string
	var previous *string
	updated, err := s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if !isOwner(identity, current) {
			return store.RequestPatch{}, store.EventInput{}, store.ErrAccessDenied
		}
		if current.IsDeleted {
			return store.RequestPatch{}, store.EventInput{}, store.ErrRequestDeleted
		}
		if current.Status == models.StatusCompleted {
			return store.RequestPatch{}, store.EventInput{}, store.ErrInvalidState
		}
		url, err := s.photos.Upload(ctx, data, current.ID)
		if err != nil {
			return store.RequestPatch{}, store.EventInput{}, fmt.Errorf("upload photo: %w", err)
		}
		uploaded = url
		previous = current.ImageURL
		return store.RequestPatch{HasImage: store.BoolPtr(true), ImageURL: store.StringPtr(url)},
			store.EventInput{Type: store.EventPhotoAttached, Payload: map[string]any{"url": url}}, nil
	})
	if err != nil {
		if uploaded != "" {
			s.deleteQuietly(ctx, id, uploaded)
		}
		return models.MaintenanceRequest{}, err
	}
	if previous != nil && *previous != "" && *previous != uploaded {
		s.deleteQuietly(ctx, id, *previous)
	}
	return updated, nil
}

// RemovePhoto deletes the stored photo and clears the reference. The
// requester or an admin covering the hostel may call it.
func (s *Service) RemovePhoto(ctx context.Context, id string) (models.MaintenanceRequest, error) {
	var removed string
	updated, err := s.mutate(ctx, id, func(identity Identity, current models.MaintenanceRequest) (store.RequestPatch, store.EventInput, error) {
		if !isOwner(identity, current) && !s.adminCanAct(ctx, identity, current) {
			return store.RequestPatch{}, store.EventInput{}, store.ErrAccessDenied
		}
		if !current.HasImage && current.ImageURL == nil {
			return store.RequestPatch{}, store.EventInput{}, nil
		}
		if current.ImageURL != nil {
			removed = *current.ImageURL
		}
		return store.RequestPatch{HasImage: store.BoolPtr(false), ImageURL: store.StringPtr("")},
			store.EventInput{Type: store.EventPhotoRemoved, Payload: map[string]any{"reason": "removed"}}, nil
	})
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	if removed != "" {
		s.deleteQuietly(ctx, id, removed)
	}
	return updated, nil
}

func (s *Service) deleteQuietly(ctx context.Context, id, url string) {
	if s.photos == nil {
		return
	}
	if _, err := s.photos.Delete(ctx, url); err != nil {
		s.log.Warn("photo delete failed", zap.String("request_id", id), zap.String("url", url), zap.Error(err))
	}
}
