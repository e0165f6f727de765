// Package access splits admin visibility between female and male hostels.
//
// A hostel is female-only when the admins table says so for any admin
// attached to it. Admins of female hostels see only female hostels and all
// other admins see only the rest. Unknown hostels are visible to nobody.
package access

import (
	"context"
	"fmt"

	"hostelcare/internal/models"
	"hostelcare/internal/store"
)

type HostelDirectory interface {
	HostelFemaleFlag(ctx context.Context, hostel string) (bool, bool, error)
	HostelFemaleFlags(ctx context.Context, hostels []string) (map[string]bool, error)
	ListHostels(ctx context.Context, female bool) ([]string, error)
}

type Partitioner struct {
	directory  HostelDirectory
	normalizer Normalizer
}

type Summary struct {
	CanAccessFemaleHostels bool     `json:"can_access_female_hostels"`
	CanAccessMaleHostels   bool     `json:"can_access_male_hostels"`
	AssignedHostel         string   `json:"assigned_hostel"`
	AccessibleHostels      []string `json:"accessible_hostels"`
}

func NewPartitioner(directory HostelDirectory, normalizer Normalizer) *Partitioner {
	return &Partitioner{directory: directory, normalizer: normalizer}
}

func (p *Partitioner) Normalize(hostel string) string {
	return p.normalizer.Normalize(hostel)
}

// CanAccess denies on lookup failure. The error is returned for logging only;
// the boolean is already the fail-closed answer.
func (p *Partitioner) CanAccess(ctx context.Context, admin models.Admin, hostel string) (bool, error) {
	name := p.normalizer.Normalize(hostel)
	if name == "" {
		return false, store.ErrHostelUnresolved
	}
	female, found, err := p.directory.HostelFemaleFlag(ctx, name)
	if err != nil {
		return false, fmt.Errorf("hostel lookup %q: %w", name, err)
	}
	if !found {
		return false, fmt.Errorf("hostel %q: %w", name, store.ErrHostelUnresolved)
	}
	return female == admin.FemaleHostel, nil
}

// FilterRequests keeps the requests whose building the admin may see. The
// distinct buildings are resolved in one lookup; the result matches calling
// CanAccess for every row.
func (p *Partitioner) FilterRequests(ctx context.Context, admin models.Admin, requests []models.MaintenanceRequest) ([]models.MaintenanceRequest, error) {
	filtered := make([]models.MaintenanceRequest, 0, len(requests))
	if len(requests) == 0 {
		return filtered, nil
	}

	seen := make(map[string]struct{})
	var names []string
	for _, request := range requests {
		name := p.normalizer.Normalize(request.Building)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	flags, err := p.directory.HostelFemaleFlags(ctx, names)
	if err != nil {
		return filtered, fmt.Errorf("hostel lookup: %w", err)
	}

	for _, request := range requests {
		female, ok := flags[p.normalizer.Normalize(request.Building)]
		if !ok {
			continue
		}
		if female == admin.FemaleHostel {
			filtered = append(filtered, request)
		}
	}
	return filtered, nil
}

func (p *Partitioner) Summary(ctx context.Context, admin models.Admin) (Summary, error) {
	hostels, err := p.directory.ListHostels(ctx, admin.FemaleHostel)
	if err != nil {
		return Summary{}, fmt.Errorf("list hostels: %w", err)
	}
	seen := make(map[string]struct{}, len(hostels))
	accessible := make([]string, 0, len(hostels))
	for _, hostel := range hostels {
		name := p.normalizer.Normalize(hostel)
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		accessible = append(accessible, name)
	}
	return Summary{
		CanAccessFemaleHostels: admin.FemaleHostel,
		CanAccessMaleHostels:   !admin.FemaleHostel,
		AssignedHostel:         p.normalizer.Normalize(admin.HostelName),
		AccessibleHostels:      accessible,
	}, nil
}
