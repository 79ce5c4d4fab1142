// Package admin implements the operator control plane over lecture recordings: resetting
// enrichment steps, transferring ownership, deleting, and inspecting the pipeline.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lecturely/backend/internal/audit"
	"github.com/lecturely/backend/internal/auth"
	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/internal/recordings"
	"github.com/lecturely/backend/pkg/apperr"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultAuditLogLimit = 100
	maxAuditLogLimit     = 1000
)

var tracer = otel.Tracer("github.com/lecturely/backend/internal/admin")

// RecordingStore is the recording persistence used by admin actions.
type RecordingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	EntryStatus(ctx context.Context, recordingID uuid.UUID) (models.EntryStatusCounts, error)
	ListEntries(ctx context.Context, recordingID uuid.UUID) ([]models.RecordEntry, error)
	ResetTranscription(ctx context.Context, id uuid.UUID, expectedVersion *int64) (*models.Recording, error)
	ResetAnalysis(ctx context.Context, id uuid.UUID, expectedVersion *int64) (*models.Recording, int64, error)
	TransferOwner(ctx context.Context, id, newOwner uuid.UUID, expectedVersion *int64) (int64, error)
	Delete(ctx context.Context, id uuid.UUID, expectedVersion *int64) error
	Totals(ctx context.Context) (count int, storageBytes int64, err error)
}

// UserDirectory resolves and updates platform users.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) (models.Role, error)
	Count(ctx context.Context) (int, error)
}

// AuditRecorder writes audit entries. Record never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// AuditReader lists past audit entries.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
}

// AudioSigner produces a time-limited URL for a recording's audio object.
type AudioSigner interface {
	PresignAudio(ctx context.Context, key string) (string, error)
}

// Actor is the authenticated operator performing an action.
type Actor struct {
	UserID    uuid.UUID
	Email     string
	Role      models.Role
	IP        string
	UserAgent string
}

// Options carries optional concurrency control for mutations.
type Options struct {
	// ExpectedVersion, when set, makes the mutation fail with a conflict if the recording
	// changed since it was read. Nil means last write wins.
	ExpectedVersion *int64
}

// Result acknowledges a successful mutation.
type Result struct {
	Message string         `json:"message"`
	Stage   pipeline.Stage `json:"stage,omitempty"`
	Version int64          `json:"version,omitempty"`
}

// RecordingDetail is the admin view of one recording.
type RecordingDetail struct {
	Recording          *models.Recording        `json:"recording"`
	Owner              *models.User             `json:"owner,omitempty"`
	RecordEntriesCount int                      `json:"recordEntriesCount"`
	ProcessingStatus   models.ProcessingStatus  `json:"processingStatus"`
	EntryStatus        models.EntryStatusCounts `json:"entryStatus"`
	AudioURL           string                   `json:"audioUrl,omitempty"`
}

// Metrics are platform-wide totals.
type Metrics struct {
	TotalUsers       int   `json:"totalUsers"`
	TotalRecordings  int   `json:"totalRecordings"`
	StorageUsedBytes int64 `json:"storageUsedBytes"`
}

// Service executes admin actions. Each action checks the actor's role first, then validates
// input, then looks up the target, then mutates, then records an audit entry.
type Service struct {
	recordings RecordingStore
	users      UserDirectory
	auditor    AuditRecorder
	auditLog   AuditReader
	audio      AudioSigner
	timeout    time.Duration
	logger     *zap.Logger
}

// NewService creates the admin service.
func NewService(recs RecordingStore, users UserDirectory, auditor AuditRecorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{recordings: recs, users: users, auditor: auditor, timeout: defaultTimeout, logger: logger}
}

// SetTimeout overrides the per-operation timeout.
func (s *Service) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetAuditReader enables AuditLog.
func (s *Service) SetAuditReader(r AuditReader) { s.auditLog = r }

// SetAudioSigner enables presigned audio URLs in Detail. Optional.
func (s *Service) SetAudioSigner(a AudioSigner) { s.audio = a }

func authorize(actor Actor) error {
	if actor.UserID == uuid.Nil {
		return apperr.Unauthorized("unauthorized")
	}
	if !actor.Role.CanAdminister() {
		return apperr.Forbidden("forbidden")
	}
	return nil
}

func (s *Service) begin(ctx context.Context, op string, actor Actor, id uuid.UUID) (context.Context, func()) {
	ctx, span := tracer.Start(ctx, "admin."+op, trace.WithAttributes(
		attribute.String("admin.actor_id", actor.UserID.String()),
		attribute.String("admin.target_id", id.String()),
	))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return ctx, func() {
		cancel()
		span.End()
	}
}

// fail maps repository errors onto the client-facing taxonomy.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, recordings.ErrNotFound):
		return apperr.NotFound("recording not found")
	case errors.Is(err, recordings.ErrVersionConflict):
		return apperr.Conflict("recording was modified; reload and retry")
	case errors.Is(err, auth.ErrUserNotFound):
		return apperr.NotFound("user not found")
	}
	trace.SpanFromContext(ctx).RecordError(err)
	s.logger.Error("admin action failed", zap.String("op", op), zap.Error(err))
	return apperr.Upstream(op+" failed", err)
}

func (s *Service) record(ctx context.Context, actor Actor, action, entityType, entityID string, before, after any) {
	s.auditor.Record(ctx, audit.Entry{
		ActorUserID: actor.UserID,
		ActorEmail:  actor.Email,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Before:      before,
		After:       after,
		IP:          actor.IP,
		UserAgent:   actor.UserAgent,
	})
}

func validateTarget(id uuid.UUID, kind pipeline.Kind) error {
	if id == uuid.Nil {
		return apperr.Validation("recording id required")
	}
	if !kind.Valid() {
		return apperr.Validation("invalid type")
	}
	return nil
}

// reset clears the fields for kind and returns the updated recording and the entries touched.
func (s *Service) reset(ctx context.Context, current *models.Recording, kind pipeline.Kind, opts Options) (*models.Recording, int64, error) {
	var (
		updated *models.Recording
		entries int64
		err     error
	)
	if kind == pipeline.KindTranscription {
		updated, err = s.recordings.ResetTranscription(ctx, current.ID, opts.ExpectedVersion)
	} else {
		updated, entries, err = s.recordings.ResetAnalysis(ctx, current.ID, opts.ExpectedVersion)
	}
	if err != nil {
		return nil, 0, err
	}
	from, to := current.Stage(), updated.Stage()
	if want := pipeline.AfterReset(from, kind); to != want || !pipeline.CanTransition(from, to, pipeline.CauseAdmin) {
		// A worker may have written fields between the read and the reset.
		s.logger.Warn("unexpected stage after reset",
			zap.String("recording_id", current.ID.String()),
			zap.String("kind", string(kind)),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("want", string(want)),
		)
	}
	return updated, entries, nil
}

// Reprocess clears the output of one enrichment step so the worker produces it again.
func (s *Service) Reprocess(ctx context.Context, actor Actor, id uuid.UUID, kind pipeline.Kind, opts Options) (*Result, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if err := validateTarget(id, kind); err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "reprocess", actor, id)
	defer done()

	current, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "reprocess", err)
	}
	before := current.Snapshot()
	updated, entries, err := s.reset(ctx, current, kind, opts)
	if err != nil {
		return nil, s.fail(ctx, "reprocess", err)
	}
	after := updated.Snapshot()

	var beforeSummary, afterSummary map[string]any
	var msg string
	if kind == pipeline.KindTranscription {
		beforeSummary = map[string]any{"hasTranscript": before.HasTranscript, "hasSubtitles": before.HasSubtitles, "stage": pipeline.Resolve(before)}
		afterSummary = map[string]any{"hasTranscript": after.HasTranscript, "hasSubtitles": after.HasSubtitles, "stage": pipeline.Resolve(after)}
		msg = "Transcription reset. The recording is queued for transcription again."
	} else {
		beforeSummary = map[string]any{"hasAI": before.HasOverview, "stage": pipeline.Resolve(before)}
		afterSummary = map[string]any{"hasAI": after.HasOverview, "stage": pipeline.Resolve(after), "entriesReset": entries}
		msg = "AI analysis reset. The recording is queued for analysis again."
	}
	s.record(ctx, actor, models.ActionReprocessPrefix+string(kind), models.EntityRecording, id.String(), beforeSummary, afterSummary)

	s.logger.Info("recording reprocess requested",
		zap.String("recording_id", id.String()),
		zap.String("kind", string(kind)),
		zap.String("actor", actor.Email),
	)
	return &Result{Message: msg, Stage: pipeline.Resolve(after), Version: updated.Version}, nil
}

// Retry re-admits a recording whose enrichment step failed or stalled.
// It performs the same reset as Reprocess and is audited separately.
func (s *Service) Retry(ctx context.Context, actor Actor, id uuid.UUID, kind pipeline.Kind, opts Options) (*Result, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if id == uuid.Nil || kind == "" {
		return nil, apperr.Validation("missing required fields")
	}
	if err := validateTarget(id, kind); err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "retry", actor, id)
	defer done()

	current, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "retry", err)
	}
	updated, _, err := s.reset(ctx, current, kind, opts)
	if err != nil {
		return nil, s.fail(ctx, "retry", err)
	}

	field, msg := "hasTranscript", "Transcription task reset for retry."
	had := current.Transcript != nil
	if kind == pipeline.KindAnalysis {
		field, msg = "hasAI", "AI analysis task reset for retry."
		had = len(current.AIOverview) > 0
	}
	s.record(ctx, actor, fmt.Sprintf(models.ActionRetryFormat, kind), models.EntityRecording, id.String(),
		map[string]any{field: had},
		map[string]any{field: false, "retryRequested": true},
	)
	return &Result{Message: msg, Stage: updated.Stage(), Version: updated.Version}, nil
}

// Transfer reassigns a recording and its entries to another user.
func (s *Service) Transfer(ctx context.Context, actor Actor, id, targetUserID uuid.UUID, opts Options) (*Result, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if targetUserID == uuid.Nil {
		return nil, apperr.Validation("target user id required")
	}
	if id == uuid.Nil {
		return nil, apperr.Validation("recording id required")
	}
	ctx, done := s.begin(ctx, "transfer", actor, id)
	defer done()

	target, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, apperr.NotFound("target user not found")
		}
		return nil, s.fail(ctx, "transfer", err)
	}
	current, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "transfer", err)
	}
	oldOwner := current.OwnerUserID
	entries, err := s.recordings.TransferOwner(ctx, id, targetUserID, opts.ExpectedVersion)
	if err != nil {
		return nil, s.fail(ctx, "transfer", err)
	}
	s.record(ctx, actor, models.ActionTransferRecording, models.EntityRecording, id.String(),
		map[string]any{"user_id": oldOwner},
		map[string]any{"user_id": targetUserID},
	)
	s.logger.Info("recording transferred",
		zap.String("recording_id", id.String()),
		zap.String("from", oldOwner.String()),
		zap.String("to", targetUserID.String()),
		zap.Int64("entries", entries),
	)
	return &Result{Message: fmt.Sprintf("Recording transferred to %s.", target.Email)}, nil
}

// Delete removes a recording. Its record entries are not removed.
func (s *Service) Delete(ctx context.Context, actor Actor, id uuid.UUID, opts Options) error {
	if err := authorize(actor); err != nil {
		return err
	}
	if id == uuid.Nil {
		return apperr.Validation("recording id required")
	}
	ctx, done := s.begin(ctx, "delete", actor, id)
	defer done()

	current, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", err)
	}
	if err := s.recordings.Delete(ctx, id, opts.ExpectedVersion); err != nil {
		return s.fail(ctx, "delete", err)
	}
	s.record(ctx, actor, models.ActionDeleteRecording, models.EntityRecording, id.String(), current, nil)
	s.logger.Info("recording deleted", zap.String("recording_id", id.String()), zap.String("actor", actor.Email))
	return nil
}

// Detail returns a recording with its processing status and entry counts.
func (s *Service) Detail(ctx context.Context, actor Actor, id uuid.UUID) (*RecordingDetail, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, apperr.Validation("recording id required")
	}
	ctx, done := s.begin(ctx, "detail", actor, id)
	defer done()

	rec, err := s.recordings.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "detail", err)
	}
	counts, err := s.recordings.EntryStatus(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "detail", err)
	}
	d := &RecordingDetail{
		Recording:          rec,
		RecordEntriesCount: counts.Total(),
		ProcessingStatus:   rec.ProcessingStatus(),
		EntryStatus:        counts,
	}
	if owner, err := s.users.GetByID(ctx, rec.OwnerUserID); err == nil {
		d.Owner = owner
	} else if !errors.Is(err, auth.ErrUserNotFound) {
		s.logger.Warn("recording owner lookup", zap.String("recording_id", id.String()), zap.Error(err))
	}
	if s.audio != nil && rec.AudioKey != "" {
		if u, err := s.audio.PresignAudio(ctx, rec.AudioKey); err == nil {
			d.AudioURL = u
		} else {
			s.logger.Warn("presign audio", zap.String("recording_id", id.String()), zap.Error(err))
		}
	}
	return d, nil
}

// Entries returns the slide entries of a recording.
func (s *Service) Entries(ctx context.Context, actor Actor, id uuid.UUID) ([]models.RecordEntry, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "entries", actor, id)
	defer done()

	if _, err := s.recordings.GetByID(ctx, id); err != nil {
		return nil, s.fail(ctx, "entries", err)
	}
	list, err := s.recordings.ListEntries(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "entries", err)
	}
	return list, nil
}

// ChangeRole sets a user's role.
func (s *Service) ChangeRole(ctx context.Context, actor Actor, userID uuid.UUID, role models.Role) error {
	if err := authorize(actor); err != nil {
		return err
	}
	if !role.Valid() {
		return apperr.Validation("invalid role")
	}
	if userID == uuid.Nil {
		return apperr.Validation("user id required")
	}
	// staff may manage users but not mint admins
	if role == models.RoleAdmin && actor.Role != models.RoleAdmin {
		return apperr.Forbidden("only admins can grant the admin role")
	}
	ctx, done := s.begin(ctx, "change_role", actor, userID)
	defer done()

	prev, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return s.fail(ctx, "change_role", err)
	}
	s.record(ctx, actor, models.ActionChangeRole, models.EntityProfile, userID.String(),
		map[string]any{"role": prev},
		map[string]any{"role": role},
	)
	return nil
}

// Metrics returns platform totals.
func (s *Service) Metrics(ctx context.Context, actor Actor) (*Metrics, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	ctx, done := s.begin(ctx, "metrics", actor, uuid.Nil)
	defer done()

	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, s.fail(ctx, "metrics", err)
	}
	recs, bytes, err := s.recordings.Totals(ctx)
	if err != nil {
		return nil, s.fail(ctx, "metrics", err)
	}
	return &Metrics{TotalUsers: users, TotalRecordings: recs, StorageUsedBytes: bytes}, nil
}

// AuditLog returns the most recent audit entries, newest first.
func (s *Service) AuditLog(ctx context.Context, actor Actor, limit int) ([]models.AuditLogEntry, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if s.auditLog == nil {
		return nil, apperr.Upstream("audit log unavailable", nil)
	}
	if limit <= 0 {
		limit = defaultAuditLogLimit
	}
	if limit > maxAuditLogLimit {
		limit = maxAuditLogLimit
	}
	ctx, done := s.begin(ctx, "audit_log", actor, uuid.Nil)
	defer done()

	list, err := s.auditLog.ListRecent(ctx, limit)
	if err != nil {
		return nil, s.fail(ctx, "audit_log", err)
	}
	if list == nil {
		list = []models.AuditLogEntry{}
	}
	return list, nil
}
