package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	outboxUsecase "github.com/allisson/recipegraph/internal/outbox/usecase"
	"github.com/allisson/recipegraph/internal/recipe/domain"
	recipeUsecase "github.com/allisson/recipegraph/internal/recipe/usecase"
)

type projectResult struct {
	RecipeID string `json:"recipe_id"`
	Action   string `json:"action,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunProject synchronizes the graph with the current state of each recipe, bypassing
// the outbox queue but not its aggregate lock, so a running worker never projects the
// same recipe concurrently. Every id is attempted; the command fails if any of them failed.
func RunProject(
	ctx context.Context,
	outbox outboxUsecase.UseCase,
	router recipeUsecase.RouterUseCase,
	logger *slog.Logger,
	out io.Writer,
	recipeIDs []string,
	format string,
) error {
	if len(recipeIDs) == 0 {
		return fmt.Errorf("at least one recipe id is required")
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	results := make([]projectResult, 0, len(recipeIDs))
	failed := 0
	for _, recipeID := range recipeIDs {
		var action domain.SyncAction
		err := outbox.WithAggregateLock(ctx, recipeID, func(ctx context.Context) error {
			var err error
			action, err = router.Sync(ctx, recipeID)
			return err
		})
		if err != nil {
			logger.Error("failed to project recipe", slog.String("recipe_id", recipeID), slog.Any("error", err))
			results = append(results, projectResult{RecipeID: recipeID, Error: err.Error()})
			failed++
			continue
		}
		results = append(results, projectResult{RecipeID: recipeID, Action: string(action)})
	}

	if format == "json" {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				_, _ = fmt.Fprintf(out, "recipe %s: failed: %s\n", r.RecipeID, r.Error)
				continue
			}
			_, _ = fmt.Fprintf(out, "recipe %s: %s\n", r.RecipeID, r.Action)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d recipe(s) failed to project", failed, len(recipeIDs))
	}
	return nil
}
