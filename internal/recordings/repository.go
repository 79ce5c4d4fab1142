package recordings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/pkg/database"
)

var (
	// ErrNotFound is returned when the recording does not exist.
	ErrNotFound = errors.New("recording not found")
	// ErrVersionConflict is returned when an expected version no longer matches.
	ErrVersionConflict = errors.New("recording version conflict")
)

const recordingColumns = `id, user_id, subject_id, COALESCE(title,''), COALESCE(audio_key,''), COALESCE(pdf_key,''),
	COALESCE(duration,0), COALESCE(file_size_bytes,0), COALESCE(pdf_size_bytes,0),
	transcript, subtitles, ai_lecture_overview, ai_analyzed_at, version, created_at, updated_at`

// Repository handles recording and record entry persistence.
type Repository struct {
	db database.DB
}

// NewRepository creates a recordings repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	var overview []byte
	err := row.Scan(&rec.ID, &rec.OwnerUserID, &rec.SubjectID, &rec.Title, &rec.AudioKey, &rec.PDFKey,
		&rec.Duration, &rec.FileSizeBytes, &rec.PDFSizeBytes,
		&rec.Transcript, &rec.Subtitles, &overview, &rec.AIAnalyzedAt, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.AIOverview = overview
	return &rec, nil
}

// GetByID returns a recording by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	return scanRecording(r.db.QueryRow(ctx, q, id))
}

// EntryStatus tallies the slide entries of a recording by annotation status.
func (r *Repository) EntryStatus(ctx context.Context, recordingID uuid.UUID) (models.EntryStatusCounts, error) {
	var c models.EntryStatusCounts
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FILTER (WHERE ai_explanation IS NULL), COUNT(*) FILTER (WHERE ai_explanation IS NOT NULL)
		FROM record_entries WHERE recording_id = $1`, recordingID).Scan(&c.Pending, &c.Annotated)
	return c, err
}

// ListEntries returns the slide entries of a recording in slide order.
func (r *Repository) ListEntries(ctx context.Context, recordingID uuid.UUID) ([]models.RecordEntry, error) {
	const q = `SELECT id, recording_id, user_id, COALESCE(material_name,''), COALESCE(slide_number,0),
		COALESCE(start_time,''), COALESCE(end_time,''), COALESCE(memo,''), ai_explanation, ai_generated_at, ai_model, created_at
		FROM record_entries WHERE recording_id = $1 ORDER BY slide_number, created_at`
	rows, err := r.db.Query(ctx, q, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RecordEntry
	for rows.Next() {
		var e models.RecordEntry
		var explanation []byte
		if err := rows.Scan(&e.ID, &e.RecordingID, &e.OwnerUserID, &e.MaterialName, &e.SlideNumber,
			&e.StartTime, &e.EndTime, &e.Memo, &explanation, &e.AIGeneratedAt, &e.AIModel, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.AIExplanation = explanation
		list = append(list, e)
	}
	return list, rows.Err()
}

// ResetTranscription clears transcript and subtitles and returns the updated recording.
func (r *Repository) ResetTranscription(ctx context.Context, id uuid.UUID, expectedVersion *int64) (*models.Recording, error) {
	q := `UPDATE recordings SET transcript = NULL, subtitles = NULL, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND ($2::bigint IS NULL OR version = $2)
		RETURNING ` + recordingColumns
	rec, err := scanRecording(r.db.QueryRow(ctx, q, id, expectedVersion))
	if errors.Is(err, ErrNotFound) {
		return nil, r.missOrConflict(ctx, r.db, id)
	}
	return rec, err
}

// ResetAnalysis clears the AI overview on the recording and the AI fields of every entry it owns,
// in one transaction. Returns the updated recording and the number of entries reset.
func (r *Repository) ResetAnalysis(ctx context.Context, id uuid.UUID, expectedVersion *int64) (*models.Recording, int64, error) {
	var rec *models.Recording
	var entries int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		q := `UPDATE recordings SET ai_lecture_overview = NULL, ai_analyzed_at = NULL, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND ($2::bigint IS NULL OR version = $2)
			RETURNING ` + recordingColumns
		var err error
		rec, err = scanRecording(tx.QueryRow(ctx, q, id, expectedVersion))
		if errors.Is(err, ErrNotFound) {
			return r.missOrConflict(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("reset recording analysis: %w", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE record_entries SET ai_explanation = NULL, ai_generated_at = NULL, ai_model = NULL
			WHERE recording_id = $1`, id)
		if err != nil {
			return fmt.Errorf("reset entry analysis: %w", err)
		}
		entries = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return rec, entries, nil
}

// TransferOwner moves a recording and its entries to newOwner in one transaction.
// Returns the number of entries moved.
func (r *Repository) TransferOwner(ctx context.Context, id, newOwner uuid.UUID, expectedVersion *int64) (int64, error) {
	var entries int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE recordings SET user_id = $2, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND ($3::bigint IS NULL OR version = $3)`, id, newOwner, expectedVersion)
		if err != nil {
			return fmt.Errorf("transfer recording: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missOrConflict(ctx, tx, id)
		}
		tag, err = tx.Exec(ctx, `UPDATE record_entries SET user_id = $2 WHERE recording_id = $1`, id, newOwner)
		if err != nil {
			return fmt.Errorf("transfer entries: %w", err)
		}
		entries = tag.RowsAffected()
		return nil
	})
	return entries, err
}

// Delete removes the recording row. Its record entries are left in place.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID, expectedVersion *int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM recordings WHERE id = $1 AND ($2::bigint IS NULL OR version = $2)`, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, r.db, id)
	}
	return nil
}

// inTx runs fn in a transaction, committing on success and rolling back otherwise.
func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// missOrConflict explains why a guarded write touched no row.
func (r *Repository) missOrConflict(ctx context.Context, db queryRower, id uuid.UUID) error {
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recordings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrVersionConflict
	}
	return ErrNotFound
}

const taskColumns = `r.id, COALESCE(r.title,''), r.user_id, COALESCE(u.full_name,''), COALESCE(u.email,''),
	r.transcript IS NOT NULL, r.subtitles IS NOT NULL, r.ai_lecture_overview IS NOT NULL, r.ai_analyzed_at,
	r.version, r.created_at, r.updated_at`

// ListByStage returns up to limit recordings in stage, newest first by the stage's ordering column.
func (r *Repository) ListByStage(ctx context.Context, stage pipeline.Stage, limit int) ([]models.TaskRow, error) {
	order := "r.updated_at DESC"
	if stage == pipeline.StageCompleted {
		order = "r.ai_analyzed_at DESC"
	}
	q := `SELECT ` + taskColumns + `
		FROM recordings r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.stage = $1 ORDER BY ` + order + `, r.id LIMIT $2`
	rows, err := r.db.Query(ctx, q, string(stage), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]models.TaskRow, 0, limit)
	for rows.Next() {
		var t models.TaskRow
		if err := rows.Scan(&t.ID, &t.Title, &t.OwnerUserID, &t.OwnerName, &t.OwnerEmail,
			&t.HasTranscript, &t.HasSubtitles, &t.HasOverview, &t.AIAnalyzedAt,
			&t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// CountByStage returns the exact number of recordings in stage.
func (r *Repository) CountByStage(ctx context.Context, stage pipeline.Stage) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM recordings WHERE stage = $1`, string(stage)).Scan(&n)
	return n, err
}

// Totals returns the number of recordings and the bytes they occupy in storage.
func (r *Repository) Totals(ctx context.Context) (count int, storageBytes int64, err error) {
	err = r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(COALESCE(file_size_bytes,0) + COALESCE(pdf_size_bytes,0)), 0)::BIGINT FROM recordings`).
		Scan(&count, &storageBytes)
	return count, storageBytes, err
}
