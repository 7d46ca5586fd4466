package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	outboxUsecase "github.com/allisson/recipegraph/internal/outbox/usecase"
)

// RunRequeueDead moves dead outbox events back to pending with a fresh attempt budget.
func RunRequeueDead(
	ctx context.Context,
	useCase outboxUsecase.UseCase,
	logger *slog.Logger,
	out io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	count, err := useCase.RequeueDead(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue dead events: %w", err)
	}
	logger.Info("requeue completed", slog.Int64("count", count))

	if format == "json" {
		return writeJSON(out, map[string]any{"requeued": count})
	}
	_, err = fmt.Fprintf(out, "Requeued %d dead event(s)\n", count)
	return err
}

// RunPurgeDone deletes done outbox events processed more than days ago.
func RunPurgeDone(
	ctx context.Context,
	useCase outboxUsecase.UseCase,
	logger *slog.Logger,
	out io.Writer,
	days int,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	count, err := useCase.PurgeDone(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to purge done events: %w", err)
	}
	logger.Info("purge completed", slog.Int64("count", count), slog.Int("days", days))

	if format == "json" {
		return writeJSON(out, map[string]any{"deleted": count, "days": days})
	}
	_, err = fmt.Fprintf(out, "Deleted %d done event(s) older than %d day(s)\n", count, days)
	return err
}

type statsRow struct {
	AggregateType string `json:"aggregate_type"`
	Status        string `json:"status"`
	Count         int64  `json:"count"`
}

// RunStats prints the number of outbox events per aggregate type and status.
func RunStats(ctx context.Context, useCase outboxUsecase.UseCase, out io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	counts, err := useCase.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to count outbox events: %w", err)
	}

	rows := make([]statsRow, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, statsRow{AggregateType: c.AggregateType, Status: string(c.Status), Count: c.Count})
	}

	if format == "json" {
		return writeJSON(out, rows)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGGREGATE TYPE\tSTATUS\tCOUNT")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", r.AggregateType, r.Status, r.Count)
	}
	return w.Flush()
}
