package usecase

import (
	"time"

	"github.com/allisson/recipegraph/internal/graph"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

func ptr[T any](v T) *T { return &v }

var fixtureTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// lasagna is recipe 42: two nutrition facts, three ingredients (tomato linked to product
// P1) and Italian cuisine.
func lasagna() *domain.RecipeAggregate {
	return &domain.RecipeAggregate{
		Recipe: domain.Recipe{
			ID:          "42",
			Title:       "Lasagna",
			Description: ptr("Layered pasta"),
			Servings:    ptr(int64(4)),
			CreatedAt:   fixtureTime,
			UpdatedAt:   fixtureTime,
		},
		NutritionFacts: []domain.NutritionFact{
			{NutrientID: "kcal", NutrientName: ptr("Energy"), Amount: ptr(520.0), Unit: ptr("kcal")},
			{NutrientID: "protein", NutrientName: ptr("Protein"), Amount: ptr(31.5), Unit: ptr("g")},
		},
		Ingredients: []domain.IngredientEntry{
			{IngredientID: "pasta", Name: ptr("Pasta"), Quantity: ptr(250.0), Unit: ptr("g"), Order: ptr(int64(1))},
			{IngredientID: "tomato", Name: ptr("Tomato"), Quantity: ptr(2.0), Unit: ptr("unit"),
				QuantityNormalizedG: ptr(240.0), Order: ptr(int64(2)), ProductID: ptr("P1"), ProductName: ptr("San Marzano")},
			{IngredientID: "cheese", Name: ptr("Cheese"), Quantity: ptr(100.0), Unit: ptr("g"), Order: ptr(int64(3))},
		},
		Ratings: domain.RatingSummary{Count: 2, Average: 4.5},
		Cuisine: &domain.Cuisine{ID: "italian", Name: ptr("Italian"), Code: ptr("IT")},
	}
}

// salad shares the tomato ingredient, product P1 and Italian cuisine with lasagna.
func salad() *domain.RecipeAggregate {
	return &domain.RecipeAggregate{
		Recipe: domain.Recipe{ID: "7", Title: "Salad", CreatedAt: fixtureTime, UpdatedAt: fixtureTime},
		Ingredients: []domain.IngredientEntry{
			{IngredientID: "tomato", Name: ptr("Tomato"), ProductID: ptr("P1"), ProductName: ptr("San Marzano")},
		},
		Cuisine: &domain.Cuisine{ID: "italian", Name: ptr("Italian"), Code: ptr("IT")},
	}
}

func node(label graph.Label, key string) graph.NodeRef {
	return graph.NodeRef{Label: label, Key: key}
}
