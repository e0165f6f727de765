// Package janitor removes stored photos that completed requests no longer
// need.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostelcare/internal/models"
	"hostelcare/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const actor = "system:photo-janitor"

type PhotoDeleter interface {
	Delete(ctx context.Context, url string) (bool, error)
}

type Janitor struct {
	requests store.RequestStore
	photos   PhotoDeleter
	log      *zap.Logger
	limit    int
}

type Result struct {
	DeletedCount int      `json:"deleted_count"`
	Errors       []string `json:"errors"`
}

func (r Result) Success() bool {
	return len(r.Errors) == 0
}

type Stats struct {
	Total      int `json:"total_requests_with_photos"`
	Completed  int `json:"completed_requests_with_photos"`
	Pending    int `json:"pending_requests_with_photos"`
	InProgress int `json:"in_progress_requests_with_photos"`
}

func New(requests store.RequestStore, photos PhotoDeleter, log *zap.Logger) *Janitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{requests: requests, photos: photos, log: log, limit: 500}
}

// CleanupCompleted deletes the photo of every completed request that still
// has one and clears the reference. A failing row is recorded and skipped.
// The reference is only cleared while the row is still completed and still
// points at the deleted object.
func (j *Janitor) CleanupCompleted(ctx context.Context) (Result, error) {
	result := Result{Errors: []string{}}
	candidates, err := j.requests.ListRequests(ctx, store.RequestFilter{
		Status:   models.StatusCompleted,
		HasImage: store.BoolPtr(true),
		Limit:    j.limit,
	})
	if err != nil {
		return result, fmt.Errorf("list completed requests: %w", err)
	}

	for _, request := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if request.ImageURL == nil || *request.ImageURL == "" {
			continue
		}
		deleted, err := j.photos.Delete(ctx, *request.ImageURL)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete photo for request %s: %v", request.ID, err))
			continue
		}
		if !deleted {
			result.Errors = append(result.Errors, fmt.Sprintf("photo for request %s is not in the bucket", request.ID))
			continue
		}
		_, err = j.requests.UpdateRequest(ctx, request.ID, store.RequestPatch{
			HasImage:       store.BoolPtr(false),
			ImageURL:       store.StringPtr(""),
			ExpectStatus:   models.StatusCompleted,
			ExpectImageURL: *request.ImageURL,
		}, store.EventInput{
			Type:    store.EventPhotoRemoved,
			Actor:   actor,
			Payload: map[string]any{"reason": "cleanup"},
		})
		if errors.Is(err, store.ErrInvalidState) {
			j.log.Info("request changed during cleanup, reference left alone", zap.String("request_id", request.ID))
			continue
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("update request %s: %v", request.ID, err))
			continue
		}
		result.DeletedCount++
	}
	return result, nil
}

func (j *Janitor) Stats(ctx context.Context) (Stats, error) {
	requests, err := j.requests.ListRequests(ctx, store.RequestFilter{HasImage: store.BoolPtr(true)})
	if err != nil {
		return Stats{}, fmt.Errorf("list requests with photos: %w", err)
	}
	var stats Stats
	for _, request := range requests {
		stats.Total++
		switch request.Status {
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusPending:
			stats.Pending++
		case models.StatusInProgress:
			stats.InProgress++
		}
	}
	return stats, nil
}

// Run performs one cleanup pass and logs the outcome.
func (j *Janitor) Run(ctx context.Context) {
	started := time.Now()
	result, err := j.CleanupCompleted(ctx)
	if err != nil {
		j.log.Error("photo cleanup failed", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.Int("deleted", result.DeletedCount),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", time.Since(started)),
	}
	if !result.Success() {
		j.log.Warn("photo cleanup finished with errors", append(fields, zap.Strings("details", result.Errors))...)
		return
	}
	j.log.Info("photo cleanup finished", fields...)
}

// Schedule registers Run on a cron schedule. Overlapping runs are skipped.
// The caller starts and stops the returned scheduler.
func Schedule(spec string, timeout time.Duration, j *Janitor) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		j.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return c, nil
}
