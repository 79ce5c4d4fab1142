package admin

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/lecturely/backend/internal/audit"
	"github.com/lecturely/backend/internal/auth"
	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/recordings"
)

// memRecordings mirrors the pgx repository semantics over maps.
type memRecordings struct {
	mu      sync.Mutex
	recs    map[uuid.UUID]*models.Recording
	entries map[uuid.UUID][]models.RecordEntry
	calls   int
	err     error
	block   bool
}

func newMemRecordings() *memRecordings {
	return &memRecordings{recs: map[uuid.UUID]*models.Recording{}, entries: map[uuid.UUID][]models.RecordEntry{}}
}

func (m *memRecordings) enter(ctx context.Context) error {
	m.calls++
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return m.err
}

func (m *memRecordings) guard(id uuid.UUID, ev *int64) (*models.Recording, error) {
	rec, ok := m.recs[id]
	if !ok {
		return nil, recordings.ErrNotFound
	}
	if ev != nil && *ev != rec.Version {
		return nil, recordings.ErrVersionConflict
	}
	return rec, nil
}

func (m *memRecordings) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	rec, ok := m.recs[id]
	if !ok {
		return nil, recordings.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecordings) EntryStatus(ctx context.Context, id uuid.UUID) (models.EntryStatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c models.EntryStatusCounts
	if err := m.enter(ctx); err != nil {
		return c, err
	}
	for _, e := range m.entries[id] {
		if len(e.AIExplanation) > 0 {
			c.Annotated++
		} else {
			c.Pending++
		}
	}
	return c, nil
}

func (m *memRecordings) ListEntries(ctx context.Context, id uuid.UUID) ([]models.RecordEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	return append([]models.RecordEntry(nil), m.entries[id]...), nil
}

func (m *memRecordings) ResetTranscription(ctx context.Context, id uuid.UUID, ev *int64) (*models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	rec, err := m.guard(id, ev)
	if err != nil {
		return nil, err
	}
	rec.Transcript, rec.Subtitles = nil, nil
	rec.Version++
	cp := *rec
	return &cp, nil
}

func (m *memRecordings) ResetAnalysis(ctx context.Context, id uuid.UUID, ev *int64) (*models.Recording, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx); err != nil {
		return nil, 0, err
	}
	rec, err := m.guard(id, ev)
	if err != nil {
		return nil, 0, err
	}
	rec.AIOverview, rec.AIAnalyzedAt = nil, nil
	rec.Version++
	list := m.entries[id]
	for i := range list {
		list[i].AIExplanation, list[i].AIGeneratedAt, list[i].AIModel = nil, nil, nil
	}
	cp := *rec
	return &cp, int64(len(list)), nil
}

func (m *memRecordings) TransferOwner(ctx context.Context, id, newOwner uuid.UUID, ev *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx); err != nil {
		return 0, err
	}
	rec, err := m.guard(id, ev)
	if err != nil {
		return 0, err
	}
	rec.OwnerUserID = newOwner
	rec.Version++
	list := m.entries[id]
	for i := range list {
		list[i].OwnerUserID = newOwner
	}
	return int64(len(list)), nil
}

func (m *memRecordings) Delete(ctx context.Context, id uuid.UUID, ev *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx); err != nil {
		return err
	}
	if _, err := m.guard(id, ev); err != nil {
		return err
	}
	delete(m.recs, id)
	return nil
}

func (m *memRecordings) Totals(ctx context.Context) (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx); err != nil {
		return 0, 0, err
	}
	var bytes int64
	for _, r := range m.recs {
		bytes += r.FileSizeBytes + r.PDFSizeBytes
	}
	return len(m.recs), bytes, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
	calls int
}

func (m *memUsers) add(email string, role models.Role) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = map[uuid.UUID]*models.User{}
	}
	u := &models.User{ID: uuid.New(), Email: email, Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdateRole(_ context.Context, id uuid.UUID, role models.Role) (models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	u, ok := m.users[id]
	if !ok {
		return "", auth.ErrUserNotFound
	}
	prev := u.Role
	u.Role = role
	return prev, nil
}

func (m *memUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *memAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}

func (m *memAudit) ListRecent(_ context.Context, limit int) ([]models.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		out = append(out, models.AuditLogEntry{ID: uuid.New(), ActorEmail: e.ActorEmail, Action: e.Action, EntityType: e.EntityType, EntityID: e.EntityID})
	}
	return out, nil
}

type fixture struct {
	svc   *Service
	recs  *memRecordings
	users *memUsers
	audit *memAudit
	admin Actor
	staff Actor
	user  Actor
}

func newFixture() *fixture {
	f := &fixture{recs: newMemRecordings(), users: &memUsers{}, audit: &memAudit{}}
	f.svc = NewService(f.recs, f.users, f.audit, nil)
	f.svc.SetAuditReader(f.audit)
	adm := f.users.add("admin@example.com", models.RoleAdmin)
	stf := f.users.add("staff@example.com", models.RoleStaff)
	usr := f.users.add("student@example.com", models.RoleUser)
	f.admin = Actor{UserID: adm.ID, Email: adm.Email, Role: adm.Role}
	f.staff = Actor{UserID: stf.ID, Email: stf.Email, Role: stf.Role}
	f.user = Actor{UserID: usr.ID, Email: usr.Email, Role: usr.Role}
	return f
}

func strPtr(s string) *string { return &s }

// addRecording stores a completed recording with n annotated entries.
func (f *fixture) addRecording(owner uuid.UUID, n int) *models.Recording {
	now := fixedNow
	rec := &models.Recording{
		ID:            uuid.New(),
		OwnerUserID:   owner,
		Title:         "Linear Algebra 3",
		AudioKey:      "audio/" + owner.String() + "/la3.webm",
		Transcript:    strPtr("hello"),
		Subtitles:     strPtr("[]"),
		AIOverview:    []byte(`{"summary":"vectors"}`),
		AIAnalyzedAt:  &now,
		Version:       1,
		FileSizeBytes: 1000,
		PDFSizeBytes:  24,
	}
	f.recs.recs[rec.ID] = rec
	for i := 0; i < n; i++ {
		f.recs.entries[rec.ID] = append(f.recs.entries[rec.ID], models.RecordEntry{
			ID:            uuid.New(),
			RecordingID:   rec.ID,
			OwnerUserID:   owner,
			SlideNumber:   i + 1,
			AIExplanation: []byte(`"explained"`),
			AIGeneratedAt: &now,
			AIModel:       strPtr("gpt"),
		})
	}
	return rec
}

var errTestDB = errors.New(`ERROR: relation "recordings" does not exist`)
