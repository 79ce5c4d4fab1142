// Package tasks provides point-in-time views of the transcription and analysis backlog.
// Every call re-reads storage; nothing is cached.
package tasks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/pkg/apperr"
)

const (
	DefaultPendingLimit = 50
	DefaultRecentLimit  = 20
	MaxLimit            = 500
)

var tracer = otel.Tracer("github.com/lecturely/backend/internal/tasks")

// Store reads recordings grouped by pipeline stage.
type Store interface {
	// ListByStage returns at most limit rows; completed rows ordered by ai_analyzed_at desc,
	// others by updated_at desc.
	ListByStage(ctx context.Context, stage pipeline.Stage, limit int) ([]models.TaskRow, error)
	CountByStage(ctx context.Context, stage pipeline.Stage) (int, error)
}

// Limits bounds each list of a snapshot. Zero values mean the defaults.
type Limits struct {
	Pending int
	Recent  int
}

// Stats summarises a snapshot. The first three counts are list sizes, so they are capped at
// the list limits; TotalProcessed is an exact count.
type Stats struct {
	PendingTranscriptionCount int `json:"pendingTranscriptionCount"`
	PendingAnalysisCount      int `json:"pendingAnalysisCount"`
	RecentlyCompletedCount    int `json:"recentlyCompletedCount"`
	TotalProcessed            int `json:"totalProcessed"`
}

// View is one dashboard read. Lists are fetched independently, so a recording changing stage
// mid-read can show up in two lists or none.
type View struct {
	Stats              Stats            `json:"stats"`
	ActiveWhisperTasks []models.TaskRow `json:"activeWhisperTasks"`
	ActiveAITasks      []models.TaskRow `json:"activeAITasks"`
	RecentCompleted    []models.TaskRow `json:"recentCompleted"`
}

// EmptyView is the zeroed view returned alongside errors.
func EmptyView() *View {
	return &View{
		ActiveWhisperTasks: []models.TaskRow{},
		ActiveAITasks:      []models.TaskRow{},
		RecentCompleted:    []models.TaskRow{},
	}
}

// Service builds task queue views.
type Service struct {
	store    Store
	timeout  time.Duration
	defaults Limits
	logger   *zap.Logger
}

// NewService creates a task view service. timeout bounds each call; zero disables it.
func NewService(store Store, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		timeout:  timeout,
		defaults: Limits{Pending: DefaultPendingLimit, Recent: DefaultRecentLimit},
		logger:   logger,
	}
}

// SetDefaults overrides the limits used when a caller passes zero. Values outside 1..MaxLimit are ignored.
func (s *Service) SetDefaults(l Limits) {
	if l.Pending > 0 && l.Pending <= MaxLimit {
		s.defaults.Pending = l.Pending
	}
	if l.Recent > 0 && l.Recent <= MaxLimit {
		s.defaults.Recent = l.Recent
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func normalize(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ListPendingTranscription returns recordings still waiting on transcript or subtitles.
func (s *Service) ListPendingTranscription(ctx context.Context, limit int) ([]models.TaskRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.list(ctx, pipeline.StagePendingTranscription, normalize(limit, s.defaults.Pending))
}

// ListPendingAnalysis returns transcribed recordings waiting on the AI overview.
func (s *Service) ListPendingAnalysis(ctx context.Context, limit int) ([]models.TaskRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.list(ctx, pipeline.StagePendingAnalysis, normalize(limit, s.defaults.Pending))
}

// ListRecentlyCompleted returns fully processed recordings, most recently analyzed first.
func (s *Service) ListRecentlyCompleted(ctx context.Context, limit int) ([]models.TaskRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.list(ctx, pipeline.StageCompleted, normalize(limit, s.defaults.Recent))
}

// CountProcessed returns the exact number of completed recordings.
func (s *Service) CountProcessed(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.store.CountByStage(ctx, pipeline.StageCompleted)
	if err != nil {
		return 0, apperr.Upstream("failed to count processed recordings", err)
	}
	return n, nil
}

// Stats returns the snapshot counters only.
func (s *Service) Stats(ctx context.Context, limits Limits) (Stats, error) {
	v, err := s.Snapshot(ctx, limits)
	if err != nil {
		return Stats{}, err
	}
	return v.Stats, nil
}

// Snapshot reads the three lists and the processed count in parallel.
func (s *Service) Snapshot(ctx context.Context, limits Limits) (*View, error) {
	ctx, span := tracer.Start(ctx, "tasks.Snapshot")
	defer span.End()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pending := normalize(limits.Pending, s.defaults.Pending)
	recent := normalize(limits.Recent, s.defaults.Recent)
	span.SetAttributes(attribute.Int("tasks.pending_limit", pending), attribute.Int("tasks.recent_limit", recent))

	v := EmptyView()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.list(gctx, pipeline.StagePendingTranscription, pending)
		v.ActiveWhisperTasks = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.list(gctx, pipeline.StagePendingAnalysis, pending)
		v.ActiveAITasks = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.list(gctx, pipeline.StageCompleted, recent)
		v.RecentCompleted = rows
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountByStage(gctx, pipeline.StageCompleted)
		if err != nil {
			return apperr.Upstream("failed to count processed recordings", err)
		}
		v.Stats.TotalProcessed = n
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	v.Stats.PendingTranscriptionCount = len(v.ActiveWhisperTasks)
	v.Stats.PendingAnalysisCount = len(v.ActiveAITasks)
	v.Stats.RecentlyCompletedCount = len(v.RecentCompleted)
	return v, nil
}

func (s *Service) list(ctx context.Context, stage pipeline.Stage, limit int) ([]models.TaskRow, error) {
	rows, err := s.store.ListByStage(ctx, stage, limit)
	if err != nil {
		return nil, apperr.Upstream("failed to load tasks", err)
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		snap := rows[i].Snapshot()
		rows[i].Stage = pipeline.Resolve(snap)
		if err := pipeline.Validate(snap); err != nil {
			s.logger.Warn("recording violates analysis pairing", zap.String("recording_id", rows[i].ID.String()))
		}
		if rows[i].Stage != stage {
			// a worker wrote between the stage filter and classification, or the stored stage drifted
			s.logger.Warn("recording stage disagrees with list",
				zap.String("recording_id", rows[i].ID.String()),
				zap.String("list", string(stage)),
				zap.String("resolved", string(rows[i].Stage)),
			)
		}
	}
	if rows == nil {
		rows = []models.TaskRow{}
	}
	return rows, nil
}
