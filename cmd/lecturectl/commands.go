package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lecturely/backend/internal/admin"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/internal/tasks"
	"github.com/lecturely/backend/pkg/apperr"
)

func parseRecordingID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid recording id %q", arg)
	}
	return id, nil
}

// versionOption maps --expected-version onto admin options; a negative value means unset.
func versionOption(v int64) admin.Options {
	if v < 0 {
		return admin.Options{}
	}
	return admin.Options{ExpectedVersion: &v}
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var limit, recent int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Show pending and recently completed recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			// The HTTP route is guarded by role middleware; apply the same rule here.
			actor, err := ctx.actor(cmd.Context(), be)
			if err != nil {
				return err
			}
			if !actor.Role.CanAdminister() {
				return apperr.Forbidden("forbidden")
			}
			view, err := be.Snapshot(cmd.Context(), tasks.Limits{Pending: limit, Recent: recent})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable([]string{"Queue", "Count"}, buildStatsRows(view.Stats), []columnAlignment{alignLeft, alignRight}))
			sections := []struct {
				title string
				rows  [][]string
			}{
				{"Pending transcription", buildTaskRows(view.ActiveWhisperTasks)},
				{"Pending analysis", buildTaskRows(view.ActiveAITasks)},
				{"Recently completed", buildTaskRows(view.RecentCompleted)},
			}
			for _, s := range sections {
				fmt.Fprintf(out, "\n%s\n", s.title)
				if len(s.rows) == 0 {
					fmt.Fprintln(out, "  none")
					continue
				}
				fmt.Fprint(out, renderTable([]string{"ID", "Title", "Owner", "Progress", "Updated"}, s.rows, nil))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows per pending list (default from config)")
	cmd.Flags().IntVar(&recent, "recent", 0, "Maximum recently completed rows (default from config)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <recording-id>",
		Short: "Show one recording and its processing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := ctx.actor(cmd.Context(), be)
			if err != nil {
				return err
			}
			d, err := be.Detail(cmd.Context(), actor, id)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, d)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, buildDetailRows(d), nil))
			return nil
		},
	}
}

// newResetCommand builds reprocess and retry, which share flags and differ only in audit action.
func newResetCommand(ctx *commandContext, name, short string) *cobra.Command {
	var kind string
	var version int64
	cmd := &cobra.Command{
		Use:   name + " <recording-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := ctx.actor(cmd.Context(), be)
			if err != nil {
				return err
			}
			run := be.Reprocess
			if name == "retry" {
				run = be.Retry
			}
			res, err := run(cmd.Context(), actor, id, pipeline.Kind(kind), versionOption(version))
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "", "Step to reset: whisper or ai")
	cmd.Flags().Int64Var(&version, "expected-version", -1, "Fail if the recording version differs")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newTransferCommand(ctx *commandContext) *cobra.Command {
	var to string
	var version int64
	cmd := &cobra.Command{
		Use:   "transfer <recording-id>",
		Short: "Move a recording and its entries to another user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			target, err := uuid.Parse(strings.TrimSpace(to))
			if err != nil {
				return fmt.Errorf("invalid target user id %q", to)
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := ctx.actor(cmd.Context(), be)
			if err != nil {
				return err
			}
			res, err := be.Transfer(cmd.Context(), actor, id, target, versionOption(version))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Target user id")
	cmd.Flags().Int64Var(&version, "expected-version", -1, "Fail if the recording version differs")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	var version int64
	cmd := &cobra.Command{
		Use:   "delete <recording-id>",
		Short: "Delete a recording (its slide entries are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := ctx.actor(cmd.Context(), be)
			if err != nil {
				return err
			}
			if err := be.Delete(cmd.Context(), actor, id, versionOption(version)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted recording %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	cmd.Flags().Int64Var(&version, "expected-version", -1, "Fail if the recording version differs")
	return cmd
}

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show platform totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := ctx.actor(cmd.Context(), be)
			if err != nil {
				return err
			}
			m, err := be.Metrics(cmd.Context(), actor)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, m)
			}
			rows := [][]string{
				{"Users", fmt.Sprintf("%d", m.TotalUsers)},
				{"Recordings", fmt.Sprintf("%d", m.TotalRecordings)},
				{"Storage", formatBytes(m.StorageUsedBytes)},
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent admin actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := ctx.backend(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := ctx.actor(cmd.Context(), be)
			if err != nil {
				return err
			}
			list, err := be.AuditLog(cmd.Context(), actor, limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit entries")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"When", "Actor", "Action", "Entity"}, buildAuditRows(list), nil))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
