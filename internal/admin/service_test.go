package admin

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/pkg/apperr"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func TestUserRoleIsForbiddenWithoutSideEffects(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 2)
	ctx := context.Background()

	calls := []struct {
		name string
		run  func() error
	}{
		{"reprocess", func() error {
			_, err := f.svc.Reprocess(ctx, f.user, rec.ID, pipeline.KindAnalysis, Options{})
			return err
		}},
		{"retry", func() error {
			_, err := f.svc.Retry(ctx, f.user, rec.ID, pipeline.KindTranscription, Options{})
			return err
		}},
		{"transfer", func() error {
			_, err := f.svc.Transfer(ctx, f.user, rec.ID, f.admin.UserID, Options{})
			return err
		}},
		{"delete", func() error { return f.svc.Delete(ctx, f.user, rec.ID, Options{}) }},
		{"detail", func() error {
			_, err := f.svc.Detail(ctx, f.user, rec.ID)
			return err
		}},
		{"change role", func() error { return f.svc.ChangeRole(ctx, f.user, f.user.UserID, models.RoleAdmin) }},
		{"metrics", func() error {
			_, err := f.svc.Metrics(ctx, f.user)
			return err
		}},
	}
	for _, tt := range calls {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); apperr.KindOf(err) != apperr.KindForbidden {
				t.Fatalf("err = %v, want forbidden", err)
			}
		})
	}
	if f.recs.calls != 0 || f.users.calls != 0 {
		t.Fatalf("storage touched: recordings=%d users=%d", f.recs.calls, f.users.calls)
	}
	if len(f.audit.entries) != 0 {
		t.Fatalf("audit entries written: %v", f.audit.actions())
	}
	if f.recs.recs[rec.ID].Transcript == nil {
		t.Fatal("recording mutated")
	}
}

func TestAnonymousActorIsUnauthorized(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Reprocess(context.Background(), Actor{Role: models.RoleAdmin}, uuid.New(), pipeline.KindAnalysis, Options{})
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestValidationPrecedesLookup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tests := []struct {
		name string
		run  func() error
	}{
		{"reprocess bad type", func() error {
			_, err := f.svc.Reprocess(ctx, f.staff, uuid.New(), pipeline.Kind("ocr"), Options{})
			return err
		}},
		{"retry missing fields", func() error {
			_, err := f.svc.Retry(ctx, f.staff, uuid.Nil, "", Options{})
			return err
		}},
		{"transfer missing target", func() error {
			_, err := f.svc.Transfer(ctx, f.staff, uuid.New(), uuid.Nil, Options{})
			return err
		}},
		{"change role unknown", func() error { return f.svc.ChangeRole(ctx, f.admin, f.user.UserID, "owner") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
	if f.recs.calls != 0 || f.users.calls != 0 {
		t.Fatalf("storage touched: recordings=%d users=%d", f.recs.calls, f.users.calls)
	}
}

func TestReprocessTranscription(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 1)

	res, err := f.svc.Reprocess(context.Background(), f.staff, rec.ID, pipeline.KindTranscription, Options{})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	got := f.recs.recs[rec.ID]
	if got.Transcript != nil || got.Subtitles != nil {
		t.Fatal("transcription fields not cleared")
	}
	if got.AIOverview == nil {
		t.Fatal("analysis fields should be untouched")
	}
	if res.Stage != pipeline.StagePendingTranscription {
		t.Fatalf("stage = %q", res.Stage)
	}
	if a := f.audit.actions(); !reflect.DeepEqual(a, []string{"reprocess_whisper"}) {
		t.Fatalf("audit = %v", a)
	}
	e := f.audit.entries[0]
	if e.ActorUserID != f.staff.UserID || e.EntityType != models.EntityRecording || e.EntityID != rec.ID.String() {
		t.Fatalf("audit entry = %+v", e)
	}
}

func TestReprocessAnalysisResetsEntries(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 3)

	res, err := f.svc.Reprocess(context.Background(), f.admin, rec.ID, pipeline.KindAnalysis, Options{})
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	got := f.recs.recs[rec.ID]
	if got.AIOverview != nil || got.AIAnalyzedAt != nil {
		t.Fatal("analysis fields not cleared")
	}
	if got.Transcript == nil {
		t.Fatal("transcript should be untouched")
	}
	for _, e := range f.recs.entries[rec.ID] {
		if e.AIExplanation != nil || e.AIGeneratedAt != nil || e.AIModel != nil {
			t.Fatalf("entry %d not reset", e.SlideNumber)
		}
	}
	if res.Stage != pipeline.StagePendingAnalysis {
		t.Fatalf("stage = %q", res.Stage)
	}
	after := f.audit.entries[0].After.(map[string]any)
	if after["entriesReset"] != int64(3) || after["hasAI"] != false {
		t.Fatalf("after = %v", after)
	}
}

func TestResetIsIdempotentAndAuditsEveryCall(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Reprocess(ctx, f.admin, rec.ID, pipeline.KindAnalysis, Options{}); err != nil {
			t.Fatalf("reprocess %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Retry(ctx, f.admin, rec.ID, pipeline.KindAnalysis, Options{}); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
	}
	want := []string{"reprocess_ai", "reprocess_ai", "retry_ai_task", "retry_ai_task"}
	if a := f.audit.actions(); !reflect.DeepEqual(a, want) {
		t.Fatalf("audit = %v, want %v", a, want)
	}
	if f.recs.recs[rec.ID].Stage() != pipeline.StagePendingAnalysis {
		t.Fatalf("stage = %q", f.recs.recs[rec.ID].Stage())
	}
}

func TestRetryAuditShape(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 0)

	if _, err := f.svc.Retry(context.Background(), f.staff, rec.ID, pipeline.KindTranscription, Options{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	e := f.audit.entries[0]
	if e.Action != "retry_whisper_task" {
		t.Fatalf("action = %q", e.Action)
	}
	before, _ := json.Marshal(e.Before)
	after, _ := json.Marshal(e.After)
	if string(before) != `{"hasTranscript":true}` || string(after) != `{"hasTranscript":false,"retryRequested":true}` {
		t.Fatalf("before=%s after=%s", before, after)
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture()
	missing := uuid.New()
	ctx := context.Background()

	if _, err := f.svc.Reprocess(ctx, f.admin, missing, pipeline.KindAnalysis, Options{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("reprocess err = %v", err)
	}
	if _, err := f.svc.Retry(ctx, f.admin, missing, pipeline.KindTranscription, Options{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("retry err = %v", err)
	}
	if err := f.svc.Delete(ctx, f.admin, missing, Options{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("delete err = %v", err)
	}
	if _, err := f.svc.Transfer(ctx, f.admin, missing, f.user.UserID, Options{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("transfer err = %v", err)
	}
	if _, err := f.svc.Transfer(ctx, f.admin, missing, uuid.New(), Options{}); apperr.Message(err) != "target user not found" {
		t.Fatalf("transfer to unknown user err = %v", err)
	}
	if len(f.audit.entries) != 0 {
		t.Fatalf("audit written for failed actions: %v", f.audit.actions())
	}
}

func TestTransferMovesRecordingAndEntries(t *testing.T) {
	f := newFixture()
	a := f.users.add("a@example.com", models.RoleUser)
	b := f.users.add("b@example.com", models.RoleUser)
	rec := f.addRecording(a.ID, 3)

	res, err := f.svc.Transfer(context.Background(), f.admin, rec.ID, b.ID, Options{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if f.recs.recs[rec.ID].OwnerUserID != b.ID {
		t.Fatal("recording owner not updated")
	}
	for _, e := range f.recs.entries[rec.ID] {
		if e.OwnerUserID != b.ID {
			t.Fatal("entry owner not updated")
		}
	}
	if res.Message != "Recording transferred to b@example.com." {
		t.Fatalf("message = %q", res.Message)
	}
	e := f.audit.entries[0]
	before, _ := json.Marshal(e.Before)
	after, _ := json.Marshal(e.After)
	if e.Action != "transfer_recording" || string(before) != `{"user_id":"`+a.ID.String()+`"}` || string(after) != `{"user_id":"`+b.ID.String()+`"}` {
		t.Fatalf("audit = %s %s %s", e.Action, before, after)
	}
}

func TestTransferToUnknownUserKeepsOwner(t *testing.T) {
	f := newFixture()
	a := f.users.add("a@example.com", models.RoleUser)
	rec := f.addRecording(a.ID, 3)
	version := f.recs.recs[rec.ID].Version

	_, err := f.svc.Transfer(context.Background(), f.admin, rec.ID, uuid.New(), Options{})
	if apperr.KindOf(err) != apperr.KindNotFound || apperr.Message(err) != "target user not found" {
		t.Fatalf("err = %v, want target user not found", err)
	}
	if got := f.recs.recs[rec.ID]; got.OwnerUserID != a.ID || got.Version != version {
		t.Fatalf("recording changed: owner=%v version=%d", got.OwnerUserID, got.Version)
	}
	for _, e := range f.recs.entries[rec.ID] {
		if e.OwnerUserID != a.ID {
			t.Fatalf("entry %v owner changed to %v", e.ID, e.OwnerUserID)
		}
	}
	if len(f.audit.entries) != 0 {
		t.Fatalf("audit written for failed transfer: %v", f.audit.actions())
	}
}

func TestDeleteThenNotFound(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 2)
	ctx := context.Background()

	if err := f.svc.Delete(ctx, f.admin, rec.ID, Options{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Detail(ctx, f.admin, rec.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("detail after delete err = %v", err)
	}
	if err := f.svc.Delete(ctx, f.admin, rec.ID, Options{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("second delete err = %v", err)
	}
	if len(f.recs.entries[rec.ID]) != 2 {
		t.Fatal("entries should survive recording delete")
	}
	e := f.audit.entries[0]
	snap, ok := e.Before.(*models.Recording)
	if e.Action != "delete_recording" || !ok || snap.ID != rec.ID || e.After != nil {
		t.Fatalf("audit = %+v", e)
	}
}

func TestExpectedVersionConflict(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 0)
	ctx := context.Background()
	stale := int64(1)

	if _, err := f.svc.Reprocess(ctx, f.admin, rec.ID, pipeline.KindTranscription, Options{ExpectedVersion: &stale}); err != nil {
		t.Fatalf("first reprocess: %v", err)
	}
	_, err := f.svc.Reprocess(ctx, f.admin, rec.ID, pipeline.KindAnalysis, Options{ExpectedVersion: &stale})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	if f.recs.recs[rec.ID].AIOverview == nil {
		t.Fatal("stale write applied")
	}
	if err := f.svc.Delete(ctx, f.admin, rec.ID, Options{ExpectedVersion: &stale}); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("delete err = %v, want conflict", err)
	}
	if len(f.audit.entries) != 1 {
		t.Fatalf("audit = %v", f.audit.actions())
	}
}

func TestTimeoutSurfacesAsUpstream(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 0)
	f.recs.block = true
	f.svc.SetTimeout(10 * time.Millisecond)

	_, err := f.svc.Reprocess(context.Background(), f.admin, rec.ID, pipeline.KindAnalysis, Options{})
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("err = %v, want upstream", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want wrapped deadline", err)
	}
	if msg := apperr.Message(err); msg != "reprocess failed (timed out)" {
		t.Fatalf("message = %q", msg)
	}
}

func TestStorageErrorIsGeneric(t *testing.T) {
	f := newFixture()
	f.recs.err = errors.New("FATAL: password authentication failed for user \"lecturely\"")
	err := f.svc.Delete(context.Background(), f.admin, uuid.New(), Options{})
	if apperr.KindOf(err) != apperr.KindUpstream || apperr.Message(err) != "delete failed" {
		t.Fatalf("err = %v (%q)", err, apperr.Message(err))
	}
}

type fakeSigner struct{ key string }

func (s *fakeSigner) PresignAudio(_ context.Context, key string) (string, error) {
	s.key = key
	return "https://signed.example.com/" + key, nil
}

func TestDetail(t *testing.T) {
	f := newFixture()
	rec := f.addRecording(f.user.UserID, 2)
	f.recs.entries[rec.ID] = append(f.recs.entries[rec.ID], models.RecordEntry{ID: uuid.New(), RecordingID: rec.ID})
	signer := &fakeSigner{}
	f.svc.SetAudioSigner(signer)

	d, err := f.svc.Detail(context.Background(), f.staff, rec.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.RecordEntriesCount != 3 || d.EntryStatus != (models.EntryStatusCounts{Pending: 1, Annotated: 2}) {
		t.Fatalf("entries = %d %+v", d.RecordEntriesCount, d.EntryStatus)
	}
	if !d.ProcessingStatus.HasTranscript || !d.ProcessingStatus.HasAIAnalysis || d.ProcessingStatus.Stage != pipeline.StageCompleted {
		t.Fatalf("status = %+v", d.ProcessingStatus)
	}
	if d.Owner == nil || d.Owner.Email != "student@example.com" {
		t.Fatalf("owner = %+v", d.Owner)
	}
	if signer.key != rec.AudioKey || d.AudioURL == "" {
		t.Fatalf("audio url = %q", d.AudioURL)
	}
	if len(f.audit.entries) != 0 {
		t.Fatal("reads must not be audited")
	}
}

func TestChangeRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.svc.ChangeRole(ctx, f.staff, f.user.UserID, models.RoleAdmin); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("staff granting admin err = %v", err)
	}
	if err := f.svc.ChangeRole(ctx, f.staff, f.user.UserID, models.RoleStaff); err != nil {
		t.Fatalf("change role: %v", err)
	}
	if f.users.users[f.user.UserID].Role != models.RoleStaff {
		t.Fatal("role not updated")
	}
	if err := f.svc.ChangeRole(ctx, f.admin, uuid.New(), models.RoleStaff); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("unknown user err = %v", err)
	}
	e := f.audit.entries[0]
	before, _ := json.Marshal(e.Before)
	after, _ := json.Marshal(e.After)
	if e.Action != "change_role" || e.EntityType != "profile" || string(before) != `{"role":"user"}` || string(after) != `{"role":"staff"}` {
		t.Fatalf("audit = %s %s %s", e.Action, before, after)
	}
}

func TestMetricsAndAuditLog(t *testing.T) {
	f := newFixture()
	f.addRecording(f.user.UserID, 0)
	f.addRecording(f.user.UserID, 0)
	ctx := context.Background()

	m, err := f.svc.Metrics(ctx, f.admin)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if *m != (Metrics{TotalUsers: 3, TotalRecordings: 2, StorageUsedBytes: 2048}) {
		t.Fatalf("metrics = %+v", m)
	}

	for range 3 {
		if err := f.svc.ChangeRole(ctx, f.admin, f.user.UserID, models.RoleUser); err != nil {
			t.Fatal(err)
		}
	}
	list, err := f.svc.AuditLog(ctx, f.staff, 2)
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(list) != 2 || list[0].Action != "change_role" {
		t.Fatalf("audit log = %+v", list)
	}
}
