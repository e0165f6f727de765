package models

import "time"

type MaintenanceRequest struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone,omitempty"`
	StudentID          string    `json:"student_id"`
	Building           string    `json:"building"`
	RoomNo             string    `json:"room_no"`
	Category           string    `json:"category"`
	Problem            string    `json:"problem"`
	Tags               []string  `json:"tags"`
	Washroom           string    `json:"washroom,omitempty"`
	Priority           string    `json:"priority"`
	VisitTime          string    `json:"visit_time"`
	Status             string    `json:"status"`
	Progress           int       `json:"progress"`
	RequesterConfirmed bool      `json:"requester_confirmed"`
	WorkerConfirmed    bool      `json:"worker_confirmed"`
	IsDeleted          bool      `json:"is_deleted"`
	HasImage           bool      `json:"has_image"`
	ImageURL           *string   `json:"image_url,omitempty"`
	AssignedTo         *string   `json:"assigned_to,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// BothConfirmed reports whether the requester and the worker side have both
// attested completion.
func (r MaintenanceRequest) BothConfirmed() bool {
	return r.RequesterConfirmed && r.WorkerConfirmed
}

// DisplayID is the reference shown to requesters.
func (r MaintenanceRequest) DisplayID() string {
	return "MR-" + r.ID
}

const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

const (
	CategoryElectricity = "electricity"
	CategoryPlumbing    = "plumbing"
	CategoryCarpentry   = "carpentry"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	VisitMorning   = "morning"
	VisitAfternoon = "afternoon"
	VisitEvening   = "evening"
	VisitAny       = "any"
)

// PriorityRank orders priorities for sorting; unknown values rank lowest.
func PriorityRank(value string) int {
	switch value {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}
