package listview

import "hostelcare/internal/models"

// Stats counts live requests by status; deleted requests are only counted
// under Deleted.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Deleted    int `json:"deleted"`
}

func Count(requests []models.MaintenanceRequest) Stats {
	var stats Stats
	for _, request := range requests {
		if request.IsDeleted {
			stats.Deleted++
			continue
		}
		stats.Total++
		switch request.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusCompleted:
			stats.Completed++
		}
	}
	return stats
}
