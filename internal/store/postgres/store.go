package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hostelcare/internal/models"
	"hostelcare/internal/store"
	"hostelcare/internal/tags"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestColumns = `id, user_id, email, name, phone, student_id, building, room_no, category, problem, tags, washroom,
	priority, visit_time, status, progress, requester_confirmed, worker_confirmed, is_deleted, has_image, image_url,
	assigned_to, created_at, updated_at`

type Store struct {
	pool         *pgxpool.Pool
	defaultLimit int
}

type Options struct {
	DefaultListLimit int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	limit := options.DefaultListLimit
	if limit <= 0 {
		limit = 1000
	}
	return &Store{
		pool:         pool,
		defaultLimit: limit,
	}
}

func (s *Store) CreateRequest(ctx context.Context, input store.CreateRequestInput, event store.EventInput) (models.MaintenanceRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO maintenance_requests (
			id, user_id, email, name, phone, student_id, building, room_no, category, problem, tags, washroom,
			priority, visit_time, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING `+requestColumns,
		uuid.NewString(), input.UserID, input.Email, input.Name, input.Phone, input.StudentID, input.Building,
		input.RoomNo, input.Category, input.Problem, tags.Encode(input.Tags), nullIfEmpty(input.Washroom),
		input.Priority, input.VisitTime, models.StatusPending, createdAt)

	var request models.MaintenanceRequest
	request, err = scanRequest(row)
	if err != nil {
		return models.MaintenanceRequest{}, err
	}

	if err = insertRequestEvent(ctx, tx, request.ID, event); err != nil {
		return models.MaintenanceRequest{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.MaintenanceRequest{}, err
	}
	return request, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (models.MaintenanceRequest, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.MaintenanceRequest{}, false, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM maintenance_requests WHERE id = $1`, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MaintenanceRequest{}, false, nil
		}
		return models.MaintenanceRequest{}, false, err
	}
	return request, true, nil
}

func (s *Store) UpdateRequest(ctx context.Context, id string, patch store.RequestPatch, event store.EventInput) (models.MaintenanceRequest, error) {
	if patch.Empty() {
		request, found, err := s.GetRequest(ctx, id)
		if err != nil {
			return models.MaintenanceRequest{}, err
		}
		if !found {
			return models.MaintenanceRequest{}, store.ErrRequestNotFound
		}
		return request, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.MaintenanceRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	updateQuery := `
		UPDATE maintenance_requests
		SET updated_at = $1`
	args := []interface{}{time.Now().UTC()}
	argPos := 2

	set := func(column string, value interface{}) {
		updateQuery += fmt.Sprintf(", %s = $%d", column, argPos)
		args = append(args, value)
		argPos++
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Progress != nil {
		set("progress", *patch.Progress)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}
	if patch.RequesterConfirmed != nil {
		set("requester_confirmed", *patch.RequesterConfirmed)
	}
	if patch.WorkerConfirmed != nil {
		set("worker_confirmed", *patch.WorkerConfirmed)
	}
	if patch.IsDeleted != nil {
		set("is_deleted", *patch.IsDeleted)
	}
	if patch.HasImage != nil {
		set("has_image", *patch.HasImage)
	}
	if patch.ImageURL != nil {
		set("image_url", nullIfEmpty(*patch.ImageURL))
	}
	if patch.AssignedTo != nil {
		set("assigned_to", nullIfEmpty(*patch.AssignedTo))
	}

	updateQuery += fmt.Sprintf(`
		WHERE id = $%d`, argPos)
	args = append(args, id)
	argPos++
	if patch.ExpectStatus != "" {
		updateQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, patch.ExpectStatus)
		argPos++
	}
	if patch.ExpectImageURL != "" {
		updateQuery += fmt.Sprintf(" AND image_url = $%d", argPos)
		args = append(args, patch.ExpectImageURL)
	}
	updateQuery += " RETURNING " + requestColumns

	var request models.MaintenanceRequest
	request, err = scanRequest(tx.QueryRow(ctx, updateQuery, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if scanErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM maintenance_requests WHERE id = $1)`, id).Scan(&exists); scanErr != nil {
				return models.MaintenanceRequest{}, scanErr
			}
			if !exists {
				return models.MaintenanceRequest{}, store.ErrRequestNotFound
			}
			return models.MaintenanceRequest{}, store.ErrInvalidState
		}
		return models.MaintenanceRequest{}, err
	}

	if err = insertRequestEvent(ctx, tx, request.ID, event); err != nil {
		return models.MaintenanceRequest{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.MaintenanceRequest{}, err
	}
	return request, nil
}

func (s *Store) ListRequests(ctx context.Context, filter store.RequestFilter) ([]models.MaintenanceRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM maintenance_requests`
	var clauses []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Email != "" {
		add("lower(email) = lower($%d)", filter.Email)
	}
	if filter.Building != "" {
		add("building = $%d", filter.Building)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.HasImage != nil {
		add("has_image = $%d", *filter.HasImage)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.MaintenanceRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

func (s *Store) ListRequestEvents(ctx context.Context, id string) ([]store.RequestEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT request_id, seq, type, actor, payload, created_at, prev_hash, hash
		FROM request_events
		WHERE request_id = $1
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.RequestEvent
	for rows.Next() {
		var event store.RequestEvent
		var payload []byte
		if err := rows.Scan(&event.RequestID, &event.Seq, &event.Type, &event.Actor, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	return events, rows.Err()
}

func insertRequestEvent(ctx context.Context, tx pgx.Tx, requestID string, event store.EventInput) error {
	if event.Type == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, requestID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM request_events
		WHERE request_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, requestID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}

	payload := []byte("{}")
	if len(event.Payload) > 0 {
		encoded, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = encoded
	}

	// jsonb normalises key order and spacing, so hash what will be read back.
	var stored []byte
	if err := tx.QueryRow(ctx, `SELECT $1::jsonb::text`, string(payload)).Scan(&stored); err != nil {
		return err
	}

	nextSeq := lastSeq + 1
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	hash := store.ComputeEventHash(prev, requestID, event.Type, event.Actor, stored, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO request_events (request_id, seq, type, actor, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, requestID, nextSeq, event.Type, event.Actor, string(stored), createdAt, prev, hash)
	return err
}

func scanRequest(row pgx.Row) (models.MaintenanceRequest, error) {
	var request models.MaintenanceRequest
	var rawTags string
	var washroom sql.NullString
	var imageURL sql.NullString
	var assignedTo sql.NullString
	if err := row.Scan(
		&request.ID, &request.UserID, &request.Email, &request.Name, &request.Phone, &request.StudentID,
		&request.Building, &request.RoomNo, &request.Category, &request.Problem, &rawTags, &washroom,
		&request.Priority, &request.VisitTime, &request.Status, &request.Progress, &request.RequesterConfirmed,
		&request.WorkerConfirmed, &request.IsDeleted, &request.HasImage, &imageURL, &assignedTo,
		&request.CreatedAt, &request.UpdatedAt,
	); err != nil {
		return models.MaintenanceRequest{}, err
	}
	request.Tags = tags.Decode(rawTags)
	if washroom.Valid {
		request.Washroom = washroom.String
	}
	request.ImageURL = nullStringPtr(imageURL)
	request.AssignedTo = nullStringPtr(assignedTo)
	return request, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
