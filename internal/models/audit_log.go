package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the admin control plane.
const (
	ActionReprocessPrefix   = "reprocess_"
	ActionRetryFormat       = "retry_%s_task"
	ActionTransferRecording = "transfer_recording"
	ActionDeleteRecording   = "delete_recording"
	ActionChangeRole        = "change_role"

	EntityRecording = "recording"
	EntityProfile   = "profile"
)

// AuditLogEntry is an immutable record of one administrative action.
type AuditLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	ActorUserID *uuid.UUID      `json:"actor_user_id"`
	ActorEmail  string          `json:"actor_email,omitempty"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type,omitempty"`
	EntityID    string          `json:"entity_id,omitempty"`
	Before      json.RawMessage `json:"before"`
	After       json.RawMessage `json:"after"`
	IP          string          `json:"ip,omitempty"`
	UserAgent   string          `json:"user_agent,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
