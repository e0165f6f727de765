package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"hostelcare/internal/models"

	"github.com/jackc/pgx/v5"
)

func (s *Store) LookupAdmin(ctx context.Context, email string) (models.Admin, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Admin{}, false, nil
	}
	var admin models.Admin
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, name, email_id, admin_type, hostel_name, female_hostel
		FROM admins
		WHERE lower(email_id) = lower($1)
		LIMIT 1
	`, email)
	if err := row.Scan(&admin.ID, &admin.Name, &admin.EmailID, &admin.AdminType, &admin.HostelName, &admin.FemaleHostel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Admin{}, false, nil
		}
		return models.Admin{}, false, err
	}
	return admin, true, nil
}

// HostelFemaleFlag and HostelFemaleFlags aggregate with bool_or so a single
// lookup and a batch lookup agree even if admin rows disagree.
func (s *Store) HostelFemaleFlag(ctx context.Context, hostel string) (bool, bool, error) {
	var flag sql.NullBool
	row := s.pool.QueryRow(ctx, `SELECT bool_or(female_hostel) FROM admins WHERE hostel_name = $1`, hostel)
	if err := row.Scan(&flag); err != nil {
		return false, false, err
	}
	if !flag.Valid {
		return false, false, nil
	}
	return flag.Bool, true, nil
}

func (s *Store) HostelFemaleFlags(ctx context.Context, hostels []string) (map[string]bool, error) {
	flags := make(map[string]bool, len(hostels))
	if len(hostels) == 0 {
		return flags, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT hostel_name, bool_or(female_hostel)
		FROM admins
		WHERE hostel_name = ANY($1)
		GROUP BY hostel_name
	`, hostels)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var female bool
		if err := rows.Scan(&name, &female); err != nil {
			return nil, err
		}
		flags[name] = female
	}
	return flags, rows.Err()
}

func (s *Store) ListHostels(ctx context.Context, female bool) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hostel_name
		FROM admins
		GROUP BY hostel_name
		HAVING bool_or(female_hostel) = $1
		ORDER BY hostel_name
	`, female)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hostels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		hostels = append(hostels, name)
	}
	return hostels, rows.Err()
}
