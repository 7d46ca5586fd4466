package domain

import (
	"strings"

	"github.com/allisson/recipegraph/internal/graph"
)

// Node labels of the recipe projection.
const (
	LabelRecipe               graph.Label = "Recipe"
	LabelRecipeNutritionValue graph.Label = "RecipeNutritionValue"
	LabelNutrientDefinition   graph.Label = "NutrientDefinition"
	LabelIngredient           graph.Label = "Ingredient"
	LabelProduct              graph.Label = "Product"
	LabelCuisine              graph.Label = "Cuisine"
)

// Relationship types of the recipe projection.
const (
	RelHasNutritionValue graph.RelType = "HAS_NUTRITION_VALUE"
	RelOfNutrient        graph.RelType = "OF_NUTRIENT"
	RelUsesIngredient    graph.RelType = "USES_INGREDIENT"
	RelUsesProduct       graph.RelType = "USES_PRODUCT"
	RelHasCuisine        graph.RelType = "HAS_CUISINE"
)

// RecipeNode addresses the Recipe node of a recipe id.
func RecipeNode(recipeID string) graph.NodeRef {
	return graph.NodeRef{Label: LabelRecipe, Key: recipeID}
}

var recipeKeyEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`)

// NutritionValueKey is the natural key of the RecipeNutritionValue owned by a recipe for
// one nutrient. Backslashes and colons in the recipe id are escaped, so the first
// unescaped colon always ends the recipe id and no two (recipe, nutrient) pairs share a key.
func NutritionValueKey(recipeID, nutrientID string) string {
	return recipeKeyEscaper.Replace(recipeID) + ":" + nutrientID
}

// SyncAction is what the router did to bring the graph in line with the source of truth.
type SyncAction string

const (
	SyncActionUpsert SyncAction = "upsert"
	SyncActionDelete SyncAction = "delete"
)
