package store

import (
	"context"
	"time"

	"hostelcare/internal/models"
)

type CreateRequestInput struct {
	UserID    string
	Email     string
	Name      string
	Phone     string
	StudentID string
	Building  string
	RoomNo    string
	Category  string
	Problem   string
	Tags      []string
	Washroom  string
	Priority  string
	VisitTime string
	CreatedAt time.Time
}

// RequestPatch is a partial update. Nil fields are left untouched and every
// non-nil field is written by the same statement. An empty string in
// ImageURL or AssignedTo clears the column.
type RequestPatch struct {
	Status             *string
	Progress           *int
	Priority           *string
	RequesterConfirmed *bool
	WorkerConfirmed    *bool
	IsDeleted          *bool
	HasImage           *bool
	ImageURL           *string
	AssignedTo         *string

	// ExpectStatus and ExpectImageURL make the write conditional on the
	// stored row. A mismatch fails with ErrInvalidState.
	ExpectStatus   string
	ExpectImageURL string
}

func (p RequestPatch) Empty() bool {
	return p.Status == nil && p.Progress == nil && p.Priority == nil &&
		p.RequesterConfirmed == nil && p.WorkerConfirmed == nil && p.IsDeleted == nil &&
		p.HasImage == nil && p.ImageURL == nil && p.AssignedTo == nil
}

type RequestFilter struct {
	Email    string
	Building string
	Status   string
	HasImage *bool
	Limit    int
	Offset   int
}

type RequestStore interface {
	CreateRequest(ctx context.Context, input CreateRequestInput, event EventInput) (models.MaintenanceRequest, error)
	GetRequest(ctx context.Context, id string) (models.MaintenanceRequest, bool, error)
	UpdateRequest(ctx context.Context, id string, patch RequestPatch, event EventInput) (models.MaintenanceRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]models.MaintenanceRequest, error)
	ListRequestEvents(ctx context.Context, id string) ([]RequestEvent, error)
}

// AdminStore reads the externally maintained admins table. Hostel gender is
// discovered through it since there is no hostel table.
type AdminStore interface {
	LookupAdmin(ctx context.Context, email string) (models.Admin, bool, error)
	HostelFemaleFlag(ctx context.Context, hostel string) (bool, bool, error)
	HostelFemaleFlags(ctx context.Context, hostels []string) (map[string]bool, error)
	ListHostels(ctx context.Context, female bool) ([]string, error)
}

func StringPtr(value string) *string { return &value }

func BoolPtr(value bool) *bool { return &value }

func IntPtr(value int) *int { return &value }
