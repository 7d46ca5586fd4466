package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/recipegraph/internal/database"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

var postgresQueries = aggregateQueries{
	recipe: `SELECT r.id, r.title, r.description, r.meal_type, r.difficulty,
			  r.prep_time_minutes, r.cook_time_minutes, r.total_time_minutes, r.servings,
			  r.image_url, r.source_url, r.source_type, r.instructions,
			  r.percent_calories_protein, r.percent_calories_fat, r.percent_calories_carbs,
			  r.created_at, r.updated_at, c.id, c.name, c.code
			  FROM recipes r
			  LEFT JOIN cuisines c ON c.id = r.cuisine_id
			  WHERE r.id = $1`,
	nutrition: `SELECT nf.nutrient_id, n.name, nf.amount, nf.unit, nf.per_amount, nf.per_amount_grams,
			  nf.percent_daily_value, nf.data_source, nf.confidence_score, nf.measurement_date
			  FROM nutrition_facts nf
			  LEFT JOIN nutrients n ON n.id = nf.nutrient_id
			  WHERE nf.entity_type = 'recipe' AND nf.entity_id = $1
			  ORDER BY nf.nutrient_id`,
	ingredients: `SELECT ri.ingredient_id, i.name, ri.quantity, ri.unit, ri.quantity_normalized_g,
			  ri.ingredient_order, ri.preparation_note, COALESCE(ri.is_optional, FALSE), ri.product_id, p.name
			  FROM recipe_ingredients ri
			  LEFT JOIN ingredients i ON i.id = ri.ingredient_id
			  LEFT JOIN products p ON p.id = ri.product_id
			  WHERE ri.recipe_id = $1
			  ORDER BY ri.ingredient_order NULLS LAST, ri.ingredient_id`,
	ratings: `SELECT COUNT(*), COALESCE(AVG(rating), 0)::float8
			  FROM recipe_ratings
			  WHERE recipe_id = $1`,
}

// PostgreSQLRecipeRepository loads recipe aggregates from PostgreSQL.
type PostgreSQLRecipeRepository struct {
	db        *sql.DB
	txManager database.TxManager
}

// NewPostgreSQLRecipeRepository creates a new PostgreSQLRecipeRepository reading from db.
func NewPostgreSQLRecipeRepository(db *sql.DB) *PostgreSQLRecipeRepository {
	return &PostgreSQLRecipeRepository{
		db:        db,
		txManager: database.NewSnapshotTxManager(db),
	}
}

// Load reads the current aggregate of recipeID on a single snapshot. It returns
// domain.ErrRecipeNotFound when the recipe row is absent.
func (r *PostgreSQLRecipeRepository) Load(ctx context.Context, recipeID string) (*domain.RecipeAggregate, error) {
	return loadAggregate(ctx, r.db, r.txManager, postgresQueries, recipeID)
}
