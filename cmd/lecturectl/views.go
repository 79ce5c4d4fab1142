package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lecturely/backend/internal/admin"
	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/internal/tasks"
)

const displayTimeLayout = "2006-01-02 15:04"

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildStatsRows(s tasks.Stats) [][]string {
	return [][]string{
		{"Pending transcription", fmt.Sprintf("%d", s.PendingTranscriptionCount)},
		{"Pending analysis", fmt.Sprintf("%d", s.PendingAnalysisCount)},
		{"Recently completed", fmt.Sprintf("%d", s.RecentlyCompletedCount)},
		{"Total processed", fmt.Sprintf("%d", s.TotalProcessed)},
	}
}

func buildTaskRows(rows []models.TaskRow) [][]string {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = "Untitled"
		}
		owner := r.OwnerEmail
		if owner == "" {
			owner = r.OwnerUserID.String()
		}
		when := r.UpdatedAt
		if r.Stage == pipeline.StageCompleted && r.AIAnalyzedAt != nil {
			when = *r.AIAnalyzedAt
		}
		out = append(out, []string{
			r.ID.String(),
			title,
			owner,
			progressMarks(r),
			formatDisplayTime(when),
		})
	}
	return out
}

// progressMarks renders which enrichment fields are present, e.g. "T S - -".
func progressMarks(r models.TaskRow) string {
	mark := func(ok bool, c string) string {
		if ok {
			return c
		}
		return "-"
	}
	return strings.Join([]string{
		mark(r.HasTranscript, "T"),
		mark(r.HasSubtitles, "S"),
		mark(r.HasOverview, "O"),
		mark(r.AIAnalyzedAt != nil, "A"),
	}, " ")
}

func buildDetailRows(d *admin.RecordingDetail) [][]string {
	rec := d.Recording
	owner := rec.OwnerUserID.String()
	if d.Owner != nil {
		owner = fmt.Sprintf("%s (%s)", d.Owner.Email, owner)
	}
	rows := [][]string{
		{"ID", rec.ID.String()},
		{"Title", rec.Title},
		{"Owner", owner},
		{"Stage", formatStageLabel(d.ProcessingStatus.Stage)},
		{"Transcript", yesNo(d.ProcessingStatus.HasTranscript)},
		{"Subtitles", yesNo(d.ProcessingStatus.HasSubtitles)},
		{"AI overview", yesNo(d.ProcessingStatus.HasAIAnalysis)},
		{"Entries", fmt.Sprintf("%d (%d annotated, %d pending)", d.RecordEntriesCount, d.EntryStatus.Annotated, d.EntryStatus.Pending)},
		{"Version", fmt.Sprintf("%d", rec.Version)},
		{"Updated", formatDisplayTime(rec.UpdatedAt)},
	}
	if d.ProcessingStatus.AIAnalyzedAt != nil {
		rows = append(rows, []string{"Analyzed", formatDisplayTime(*d.ProcessingStatus.AIAnalyzedAt)})
	}
	if d.AudioURL != "" {
		rows = append(rows, []string{"Audio", d.AudioURL})
	}
	return rows
}

func buildAuditRows(list []models.AuditLogEntry) [][]string {
	out := make([][]string, 0, len(list))
	for _, e := range list {
		out = append(out, []string{
			formatDisplayTime(e.CreatedAt),
			e.ActorEmail,
			e.Action,
			strings.TrimSpace(e.EntityType + " " + e.EntityID),
		})
	}
	return out
}

func formatStageLabel(s pipeline.Stage) string {
	parts := strings.Split(string(s), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(displayTimeLayout)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
