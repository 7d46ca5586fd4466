package usecase

import (
	"context"
	"slices"

	"github.com/allisson/recipegraph/internal/graph"
	"github.com/allisson/recipegraph/internal/recipe/domain"
)

// linkedNode is a node reached from the Recipe through one relationship.
type linkedNode struct {
	node      graph.NodeRef
	nodeProps graph.Props
	edgeProps graph.Props
}

type nutritionValue struct {
	value         graph.NodeRef
	valueProps    graph.Props
	nutrient      graph.NodeRef
	nutrientProps graph.Props
}

// projection is the complete write set of one aggregate. It is built once, outside the
// graph transaction, so replaying apply on a driver retry writes the same thing.
type projection struct {
	recipe      graph.NodeRef
	recipeProps graph.Props
	nutrition   []nutritionValue
	ingredients []linkedNode
	products    []linkedNode
	cuisine     *linkedNode
}

// optional dereferences p; nil pointers become nil values, which clear the property.
func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// setIfPresent only writes shared-node properties the aggregate actually knows about.
func setIfPresent(props graph.Props, key string, p *string) {
	if p != nil {
		props[key] = *p
	}
}

func buildProjection(agg *domain.RecipeAggregate) *projection {
	r := agg.Recipe
	p := &projection{
		recipe: domain.RecipeNode(r.ID),
		recipeProps: graph.Props{
			"title":                    r.Title,
			"description":              optional(r.Description),
			"meal_type":                optional(r.MealType),
			"difficulty":               optional(r.Difficulty),
			"prep_time_minutes":        optional(r.PrepTimeMinutes),
			"cook_time_minutes":        optional(r.CookTimeMinutes),
			"total_time_minutes":       optional(r.TotalTimeMinutes),
			"servings":                 optional(r.Servings),
			"image_url":                optional(r.ImageURL),
			"source_url":               optional(r.SourceURL),
			"source_type":              optional(r.SourceType),
			"instructions":             optional(r.Instructions),
			"percent_calories_protein": optional(r.PercentCaloriesProtein),
			"percent_calories_fat":     optional(r.PercentCaloriesFat),
			"percent_calories_carbs":   optional(r.PercentCaloriesCarbs),
			"avg_rating":               agg.Ratings.Average,
			"rating_count":             agg.Ratings.Count,
			"created_at":               r.CreatedAt,
			"updated_at":               r.UpdatedAt,
		},
	}

	for _, f := range agg.NutritionFacts {
		nutrientProps := graph.Props{}
		setIfPresent(nutrientProps, "name", f.NutrientName)

		p.nutrition = append(p.nutrition, nutritionValue{
			value: graph.NodeRef{
				Label: domain.LabelRecipeNutritionValue,
				Key:   domain.NutritionValueKey(r.ID, f.NutrientID),
			},
			valueProps: graph.Props{
				"recipe_id":           r.ID,
				"nutrient_id":         f.NutrientID,
				"amount":              optional(f.Amount),
				"unit":                optional(f.Unit),
				"per_amount":          optional(f.PerAmount),
				"per_amount_grams":    optional(f.PerAmountGrams),
				"percent_daily_value": optional(f.PercentDailyValue),
				"data_source":         optional(f.DataSource),
				"confidence_score":    optional(f.ConfidenceScore),
				"measurement_date":    optional(f.MeasurementDate),
			},
			nutrient:      graph.NodeRef{Label: domain.LabelNutrientDefinition, Key: f.NutrientID},
			nutrientProps: nutrientProps,
		})
	}

	type productUse struct {
		name          *string
		ingredientIDs []string
		normalizedG   *float64
	}
	var productOrder []string
	productUses := map[string]*productUse{}

	for _, i := range agg.Ingredients {
		ingredientProps := graph.Props{}
		setIfPresent(ingredientProps, "name", i.Name)

		p.ingredients = append(p.ingredients, linkedNode{
			node:      graph.NodeRef{Label: domain.LabelIngredient, Key: i.IngredientID},
			nodeProps: ingredientProps,
			edgeProps: graph.Props{
				"quantity":              optional(i.Quantity),
				"unit":                  optional(i.Unit),
				"quantity_normalized_g": optional(i.QuantityNormalizedG),
				"ingredient_order":      optional(i.Order),
				"preparation_note":      optional(i.PreparationNote),
				"is_optional":           i.Optional,
			},
		})

		if i.ProductID == nil {
			continue
		}
		use, ok := productUses[*i.ProductID]
		if !ok {
			use = &productUse{}
			productUses[*i.ProductID] = use
			productOrder = append(productOrder, *i.ProductID)
		}
		if use.name == nil {
			use.name = i.ProductName
		}
		use.ingredientIDs = append(use.ingredientIDs, i.IngredientID)
		if i.QuantityNormalizedG != nil {
			total := *i.QuantityNormalizedG
			if use.normalizedG != nil {
				total += *use.normalizedG
			}
			use.normalizedG = &total
		}
	}

	// Several ingredient lines may resolve to the same product; they share one edge.
	for _, productID := range productOrder {
		use := productUses[productID]
		slices.Sort(use.ingredientIDs)
		productProps := graph.Props{}
		setIfPresent(productProps, "name", use.name)
		p.products = append(p.products, linkedNode{
			node:      graph.NodeRef{Label: domain.LabelProduct, Key: productID},
			nodeProps: productProps,
			edgeProps: graph.Props{
				"ingredient_ids":        use.ingredientIDs,
				"quantity_normalized_g": optional(use.normalizedG),
			},
		})
	}

	if c := agg.Cuisine; c != nil {
		cuisineProps := graph.Props{}
		setIfPresent(cuisineProps, "name", c.Name)
		setIfPresent(cuisineProps, "code", c.Code)
		p.cuisine = &linkedNode{
			node:      graph.NodeRef{Label: domain.LabelCuisine, Key: c.ID},
			nodeProps: cuisineProps,
		}
	}

	return p
}

func keys(nodes []linkedNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.node.Key)
	}
	return out
}

// apply writes the projection and removes whatever the previous state left behind.
func (p *projection) apply(ctx context.Context, tx graph.Tx) error {
	if err := tx.MergeNode(ctx, p.recipe, p.recipeProps); err != nil {
		return err
	}

	valueKeys := make([]string, 0, len(p.nutrition))
	for _, nv := range p.nutrition {
		if err := tx.MergeNode(ctx, nv.nutrient, nv.nutrientProps); err != nil {
			return err
		}
		if err := tx.MergeNode(ctx, nv.value, nv.valueProps); err != nil {
			return err
		}
		if err := tx.MergeEdge(ctx, p.recipe, domain.RelHasNutritionValue, nv.value, nil); err != nil {
			return err
		}
		if err := tx.MergeEdge(ctx, nv.value, domain.RelOfNutrient, nv.nutrient, nil); err != nil {
			return err
		}
		valueKeys = append(valueKeys, nv.value.Key)
	}
	_, err := tx.PruneOwned(ctx, p.recipe, domain.RelHasNutritionValue, domain.LabelRecipeNutritionValue, valueKeys)
	if err != nil {
		return err
	}

	if err := p.link(ctx, tx, domain.RelUsesIngredient, domain.LabelIngredient, p.ingredients); err != nil {
		return err
	}
	if err := p.link(ctx, tx, domain.RelUsesProduct, domain.LabelProduct, p.products); err != nil {
		return err
	}

	var cuisines []linkedNode
	if p.cuisine != nil {
		cuisines = append(cuisines, *p.cuisine)
	}
	return p.link(ctx, tx, domain.RelHasCuisine, domain.LabelCuisine, cuisines)
}

// link merges shared nodes and their edges from the Recipe, then prunes the edges to
// targets no longer referenced. Shared nodes themselves are never deleted.
func (p *projection) link(
	ctx context.Context,
	tx graph.Tx,
	rel graph.RelType,
	label graph.Label,
	targets []linkedNode,
) error {
	for _, t := range targets {
		if err := tx.MergeNode(ctx, t.node, t.nodeProps); err != nil {
			return err
		}
		if err := tx.MergeEdge(ctx, p.recipe, rel, t.node, t.edgeProps); err != nil {
			return err
		}
	}
	_, err := tx.PruneEdges(ctx, p.recipe, rel, label, keys(targets))
	return err
}
