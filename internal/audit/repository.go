package audit

import (
	"bytes"
	"context"

	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/pkg/database"
)

// Repository handles audit_logs persistence. It only inserts and reads.
type Repository struct {
	db database.DB
}

// NewRepository creates an audit repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends an entry. Replaying an entry that already landed is a no-op.
func (r *Repository) Insert(ctx context.Context, e *models.AuditLogEntry) error {
	const q = `INSERT INTO audit_logs (id, actor_user_id, actor_email, action, entity_type, entity_id, before, after, ip, user_agent, created_at)
		VALUES ($1, $2, NULLIF($3,''), $4, NULLIF($5,''), NULLIF($6,''), $7, $8, NULLIF($9,''), NULLIF($10,''), $11)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, q, e.ID, e.ActorUserID, e.ActorEmail, e.Action, e.EntityType, e.EntityID,
		nullJSON(e.Before), nullJSON(e.After), e.IP, e.UserAgent, e.CreatedAt)
	return err
}

// ListRecent returns the newest entries first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	const q = `SELECT id, actor_user_id, COALESCE(actor_email,''), action, COALESCE(entity_type,''), COALESCE(entity_id,''),
		before, after, COALESCE(ip,''), COALESCE(user_agent,''), created_at
		FROM audit_logs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.ActorEmail, &e.Action, &e.EntityType, &e.EntityID,
			&before, &after, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Before, e.After = before, after
		list = append(list, e)
	}
	return list, rows.Err()
}

// nullJSON keeps an absent snapshot as SQL NULL instead of a jsonb literal. A spooled entry
// round-trips a missing snapshot as the JSON text null, which is treated the same.
func nullJSON(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return string(raw)
}
