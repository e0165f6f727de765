package workflow

import (
	"context"
	"fmt"
	"strings"

	"hostelcare/internal/access"
	"hostelcare/internal/listview"
	"hostelcare/internal/models"
	"hostelcare/internal/session"
	"hostelcare/internal/store"

	"go.uber.org/zap"
)

type CreateInput struct {
	Name          string   `json:"name" validate:"required,max=120"`
	StudentID     string   `json:"student_id" validate:"required,max=40"`
	Email         string   `json:"email" validate:"omitempty,email"`
	Phone         string   `json:"phone" validate:"omitempty,max=20"`
	Building      string   `json:"building" validate:"required,max=80"`
	RoomNo        string   `json:"room_no" validate:"required,max=20"`
	Category      string   `json:"category" validate:"required,oneof=electricity plumbing carpentry"`
	Problem       string   `json:"problem" validate:"required,max=2000"`
	Tags          []string `json:"tags" validate:"max=12,dive,max=40"`
	Washroom      string   `json:"washroom" validate:"max=40"`
	Priority      string   `json:"priority" validate:"omitempty,oneof=low medium high"`
	VisitTime     string   `json:"visit_time" validate:"omitempty,oneof=morning afternoon evening any"`
	TermsAccepted bool     `json:"terms_accepted" validate:"required"`
}

// Create files a new request for the signed-in user. The email defaults to
// the account's and may not name anyone else.
func (s *Service) Create(ctx context.Context, input CreateInput) (models.MaintenanceRequest, error) {
	user, ok := s.sessions.CurrentUser(ctx)
	if !ok {
		return models.MaintenanceRequest{}, store.ErrUnauthenticated
	}

	input = trimCreateInput(input)
	if input.Email == "" {
		input.Email = user.Email
	}
	if input.Priority == "" {
		input.Priority = models.PriorityLow
	}
	if input.VisitTime == "" {
		input.VisitTime = models.VisitAny
	}
	if input.Category != models.CategoryPlumbing {
		input.Washroom = ""
	}
	if err := s.validate.Struct(input); err != nil {
		return models.MaintenanceRequest{}, validationError(err)
	}
	if !session.SameEmail(input.Email, user.Email) {
		return models.MaintenanceRequest{}, fieldError("email", "must match the signed-in account")
	}

	release, err := s.guard.Acquire(ctx, "create:"+user.ID)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	defer release()

	request, err := s.requests.CreateRequest(ctx, store.CreateRequestInput{
		UserID:    user.ID,
		Email:     input.Email,
		Name:      input.Name,
		Phone:     input.Phone,
		StudentID: input.StudentID,
		Building:  s.access.Normalize(input.Building),
		RoomNo:    input.RoomNo,
		Category:  input.Category,
		Problem:   input.Problem,
		Tags:      input.Tags,
		Washroom:  input.Washroom,
		Priority:  input.Priority,
		VisitTime: input.VisitTime,
		CreatedAt: s.now().UTC(),
	}, store.EventInput{Type: store.EventCreated, Actor: user.Email})
	if err != nil {
		return models.MaintenanceRequest{}, fmt.Errorf("create request: %w", err)
	}
	s.log.Info("request created", zap.String("request_id", request.ID), zap.String("building", request.Building), zap.String("category", request.Category))
	return request, nil
}

func trimCreateInput(input CreateInput) CreateInput {
	input.Name = strings.TrimSpace(input.Name)
	input.StudentID = strings.TrimSpace(input.StudentID)
	input.Email = strings.TrimSpace(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Building = strings.TrimSpace(input.Building)
	input.RoomNo = strings.TrimSpace(input.RoomNo)
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.Problem = strings.TrimSpace(input.Problem)
	input.Washroom = strings.TrimSpace(input.Washroom)
	input.Priority = strings.ToLower(strings.TrimSpace(input.Priority))
	input.VisitTime = strings.ToLower(strings.TrimSpace(input.VisitTime))
	return input
}

// Get returns a request to its requester or to an admin whose hostel
// partition covers it.
func (s *Service) Get(ctx context.Context, id string) (models.MaintenanceRequest, error) {
	identity, err := s.Identity(ctx)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	if !isRequester(identity, request) && !s.adminCanAct(ctx, identity, request) {
		return models.MaintenanceRequest{}, store.ErrAccessDenied
	}
	return request, nil
}

type EventLog struct {
	Events     []store.RequestEvent `json:"events"`
	ChainValid bool                 `json:"chain_valid"`
}

func (s *Service) Events(ctx context.Context, id string) (EventLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return EventLog{}, err
	}
	events, err := s.requests.ListRequestEvents(ctx, id)
	if err != nil {
		return EventLog{}, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []store.RequestEvent{}
	}
	return EventLog{Events: events, ChainValid: store.VerifyEventChain(events)}, nil
}

// ListMine returns the caller's own requests through the requester view.
func (s *Service) ListMine(ctx context.Context, q listview.Query) (listview.Page, error) {
	user, ok := s.sessions.CurrentUser(ctx)
	if !ok {
		return listview.Page{}, store.ErrUnauthenticated
	}
	requests, err := s.requests.ListRequests(ctx, store.RequestFilter{Email: user.Email, Limit: s.listLimit})
	if err != nil {
		return listview.Page{}, fmt.Errorf("list requests: %w", err)
	}
	q.Site = listview.SiteRequester
	q.Normalize = s.access.Normalize
	return listview.View(requests, q), nil
}

type AdminPage struct {
	listview.Page
	Stats listview.Stats `json:"stats"`
}

// AdminRequests is every request the admin's partition covers, newest first,
// capped at the list limit.
func (s *Service) AdminRequests(ctx context.Context) ([]models.MaintenanceRequest, error) {
	identity, err := s.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	// The partition is applied after the store query, so keep paging until
	// the admin's own rows fill the limit or the table runs out.
	visible := []models.MaintenanceRequest{}
	for offset := 0; len(visible) < s.listLimit; offset += s.listLimit {
		requests, err := s.requests.ListRequests(ctx, store.RequestFilter{Limit: s.listLimit, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		page, err := s.access.FilterRequests(ctx, *identity.Admin, requests)
		if err != nil {
			s.log.Error("hostel partition lookup failed", zap.String("admin", identity.Admin.EmailID), zap.Error(err))
			return nil, err
		}
		visible = append(visible, page...)
		if len(requests) < s.listLimit {
			break
		}
	}
	if len(visible) > s.listLimit {
		visible = visible[:s.listLimit]
	}
	return visible, nil
}

// ListForAdmin applies the admin view to AdminRequests. Stats cover the whole
// partition, not just the filtered page.
func (s *Service) ListForAdmin(ctx context.Context, q listview.Query) (AdminPage, error) {
	visible, err := s.AdminRequests(ctx)
	if err != nil {
		return AdminPage{}, err
	}
	q.Site = listview.SiteAdmin
	q.Normalize = s.access.Normalize
	return AdminPage{Page: listview.View(visible, q), Stats: listview.Count(visible)}, nil
}

// FilteredForAdmin returns the full filtered and sorted admin list without
// pagination, for exports.
func (s *Service) FilteredForAdmin(ctx context.Context, q listview.Query) ([]models.MaintenanceRequest, error) {
	visible, err := s.AdminRequests(ctx)
	if err != nil {
		return nil, err
	}
	q.Site = listview.SiteAdmin
	q.Normalize = s.access.Normalize
	return listview.Apply(visible, q), nil
}

func (s *Service) AccessSummary(ctx context.Context) (access.Summary, error) {
	identity, err := s.RequireAdmin(ctx)
	if err != nil {
		return access.Summary{}, err
	}
	return s.access.Summary(ctx, *identity.Admin)
}
