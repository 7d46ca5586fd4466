// Package repository provides the recipe aggregate loaders for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/recipegraph/internal/database"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// aggregateQueries holds the dialect specific statements of a loader. Each takes the
// recipe id as its only argument.
type aggregateQueries struct {
	recipe      string
	nutrition   string
	ingredients string
	ratings     string
}

// loadAggregate reads the whole aggregate on one snapshot transaction of the source
// database. The transaction shadows any outbox transaction carried by ctx.
func loadAggregate(
	ctx context.Context,
	db *sql.DB,
	txManager database.TxManager,
	queries aggregateQueries,
	recipeID string,
) (*domain.RecipeAggregate, error) {
	var aggregate *domain.RecipeAggregate

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, db)

		agg, err := scanRecipe(ctx, querier, queries.recipe, recipeID)
		if err != nil {
			return err
		}
		if agg.NutritionFacts, err = scanNutritionFacts(ctx, querier, queries.nutrition, recipeID); err != nil {
			return err
		}
		if agg.Ingredients, err = scanIngredients(ctx, querier, queries.ingredients, recipeID); err != nil {
			return err
		}
		err = querier.QueryRowContext(ctx, queries.ratings, recipeID).Scan(&agg.Ratings.Count, &agg.Ratings.Average)
		if err != nil {
			return err
		}

		aggregate = agg
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRecipeNotFound) {
			return nil, err
		}
		return nil, database.ClassifyError(err)
	}
	return aggregate, nil
}

func scanRecipe(
	ctx context.Context,
	querier database.Querier,
	query string,
	recipeID string,
) (*domain.RecipeAggregate, error) {
	var (
		agg                                 domain.RecipeAggregate
		r                                   = &agg.Recipe
		cuisineID, cuisineName, cuisineCode *string
	)

	err := querier.QueryRowContext(ctx, query, recipeID).Scan(
		&r.ID, &r.Title, &r.Description, &r.MealType, &r.Difficulty,
		&r.PrepTimeMinutes, &r.CookTimeMinutes, &r.TotalTimeMinutes, &r.Servings,
		&r.ImageURL, &r.SourceURL, &r.SourceType, &r.Instructions,
		&r.PercentCaloriesProtein, &r.PercentCaloriesFat, &r.PercentCaloriesCarbs,
		&r.CreatedAt, &r.UpdatedAt,
		&cuisineID, &cuisineName, &cuisineCode,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecipeNotFound
		}
		return nil, err
	}

	if cuisineID != nil {
		agg.Cuisine = &domain.Cuisine{ID: *cuisineID, Name: cuisineName, Code: cuisineCode}
	}
	return &agg, nil
}

func scanNutritionFacts(
	ctx context.Context,
	querier database.Querier,
	query string,
	recipeID string,
) ([]domain.NutritionFact, error) {
	rows, err := querier.QueryContext(ctx, query, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	facts := []domain.NutritionFact{}
	for rows.Next() {
		var f domain.NutritionFact
		err := rows.Scan(&f.NutrientID, &f.NutrientName, &f.Amount, &f.Unit, &f.PerAmount,
			&f.PerAmountGrams, &f.PercentDailyValue, &f.DataSource, &f.ConfidenceScore, &f.MeasurementDate)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func scanIngredients(
	ctx context.Context,
	querier database.Querier,
	query string,
	recipeID string,
) ([]domain.IngredientEntry, error) {
	rows, err := querier.QueryContext(ctx, query, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	ingredients := []domain.IngredientEntry{}
	for rows.Next() {
		var i domain.IngredientEntry
		err := rows.Scan(&i.IngredientID, &i.Name, &i.Quantity, &i.Unit, &i.QuantityNormalizedG,
			&i.Order, &i.PreparationNote, &i.Optional, &i.ProductID, &i.ProductName)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, i)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ingredients, nil
}
