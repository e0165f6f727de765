package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventCreated            = "request.created"
	EventRequesterConfirmed = "request.confirmed_requester"
	EventWorkerConfirmed    = "request.confirmed_worker"
	EventProgress           = "request.progress"
	EventPriority           = "request.priority"
	EventStatus             = "request.status"
	EventCompleted          = "request.completed"
	EventReopened           = "request.reopened"
	EventDeleted            = "request.deleted"
	EventRestored           = "request.restored"
	EventAssigned           = "request.assigned"
	EventPhotoAttached      = "request.photo_attached"
	EventPhotoRemoved       = "request.photo_removed"
)

// EventInput describes the audit row written alongside a mutation.
type EventInput struct {
	Type    string
	Actor   string
	Payload map[string]any
}

type RequestEvent struct {
	RequestID string          `json:"request_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

func ComputeEventHash(prevHash, requestID, eventType, actor string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s", prevHash, requestID, eventType, actor, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyEventChain checks sequence continuity and the hash links of an
// ordered event list.
func VerifyEventChain(events []RequestEvent) bool {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 || event.PrevHash != prev {
			return false
		}
		if ComputeEventHash(prev, event.RequestID, event.Type, event.Actor, event.Payload, event.CreatedAt, event.Seq) != event.Hash {
			return false
		}
		prev = event.Hash
	}
	return true
}
