// Package listview turns a fetched request list into one display page.
//
// Everything here is pure: the input slice is never reordered or modified.
// Filtering runs first with all facets AND-ed together, then a stable sort,
// then prefix pagination ("load more" grows the page count, it never skips).
package listview

import (
	"sort"
	"strings"

	"hostelcare/internal/models"
)

const (
	SiteRequester = "requester"
	SiteAdmin     = "admin"
)

const (
	TabAll       = "all"
	TabActive    = "active"
	TabCompleted = "completed"
	TabPast      = "past"
)

const (
	SortNewest       = "newest"
	SortOldest       = "oldest"
	SortPriorityDesc = "priority_desc"
	SortPriorityAsc  = "priority_asc"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Query struct {
	Site     string
	Tab      string
	Search   string
	Status   string
	Building string
	Category string
	Priority string
	Sort     string
	Page     int
	PageSize int

	// Normalize canonicalises hostel names for the building facet. When nil
	// buildings compare trimmed and case-insensitively.
	Normalize func(string) string
}

type Page struct {
	Items   []models.MaintenanceRequest `json:"items"`
	Total   int                         `json:"total"`
	HasMore bool                        `json:"has_more"`
	Page    int                         `json:"page"`
}

func View(requests []models.MaintenanceRequest, q Query) Page {
	q = withDefaults(q)
	matched := Apply(requests, q)

	limit := q.Page * q.PageSize
	if limit > len(matched) {
		limit = len(matched)
	}
	return Page{
		Items:   matched[:limit],
		Total:   len(matched),
		HasMore: len(matched) > limit,
		Page:    q.Page,
	}
}

// Apply filters and sorts without paginating. The result is a new slice.
func Apply(requests []models.MaintenanceRequest, q Query) []models.MaintenanceRequest {
	q = withDefaults(q)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	matched := make([]models.MaintenanceRequest, 0, len(requests))
	for _, request := range requests {
		if !inTab(q.Site, q.Tab, request) {
			continue
		}
		if search != "" && !matchesSearch(q.Site, search, request) {
			continue
		}
		if !facet(q.Status, request.Status) || !facet(q.Category, request.Category) || !facet(q.Priority, request.Priority) {
			continue
		}
		if !buildingFacet(q, request.Building) {
			continue
		}
		matched = append(matched, request)
	}

	sortRequests(matched, q.Sort)
	return matched
}

func withDefaults(q Query) Query {
	if q.Site == "" {
		q.Site = SiteRequester
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.Sort == "" {
		q.Sort = SortNewest
	}
	return q
}

// inTab applies each site's own active/past boundary. Both sites keep
// soft-deleted rows out of active. The requester's completed tab is status
// only, so a deleted open request shows up under all and nowhere else; the
// admin past view takes every deleted row.
func inTab(site, tab string, request models.MaintenanceRequest) bool {
	switch site {
	case SiteAdmin:
		past := request.IsDeleted || request.Status == models.StatusCompleted
		switch tab {
		case TabActive:
			return !past
		case TabPast, TabCompleted:
			return past
		default:
			return true
		}
	default:
		switch tab {
		case TabActive:
			open := request.Status == models.StatusPending || request.Status == models.StatusInProgress
			return open && !request.IsDeleted
		case TabCompleted, TabPast:
			return request.Status == models.StatusCompleted
		default:
			return true
		}
	}
}

func matchesSearch(site, search string, request models.MaintenanceRequest) bool {
	fields := []string{request.Problem, request.Category, request.Building, request.RoomNo, request.Email, request.ID}
	if site == SiteAdmin {
		fields = append(fields, request.Name, request.StudentID)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func facet(want, value string) bool {
	want = strings.TrimSpace(want)
	if want == "" || strings.EqualFold(want, TabAll) {
		return true
	}
	return strings.EqualFold(want, value)
}

func buildingFacet(q Query, building string) bool {
	want := strings.TrimSpace(q.Building)
	if want == "" || strings.EqualFold(want, TabAll) {
		return true
	}
	if q.Normalize != nil {
		return strings.EqualFold(q.Normalize(want), q.Normalize(building))
	}
	return strings.EqualFold(want, strings.TrimSpace(building))
}

func sortRequests(requests []models.MaintenanceRequest, key string) {
	switch key {
	case SortOldest:
		sort.SliceStable(requests, func(i, j int) bool {
			return timestamp(requests[i]) < timestamp(requests[j])
		})
	case SortPriorityDesc:
		sort.SliceStable(requests, func(i, j int) bool {
			return models.PriorityRank(requests[i].Priority) > models.PriorityRank(requests[j].Priority)
		})
	case SortPriorityAsc:
		sort.SliceStable(requests, func(i, j int) bool {
			return models.PriorityRank(requests[i].Priority) < models.PriorityRank(requests[j].Priority)
		})
	default:
		sort.SliceStable(requests, func(i, j int) bool {
			return timestamp(requests[i]) > timestamp(requests[j])
		})
	}
}

// timestamp treats a missing created_at as the Unix epoch.
func timestamp(request models.MaintenanceRequest) int64 {
	if request.CreatedAt.IsZero() {
		return 0
	}
	return request.CreatedAt.UnixMilli()
}
