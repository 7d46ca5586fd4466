package domain

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/recipegraph/internal/errors"
	appValidation "github.com/allisson/recipegraph/internal/validation"
)

// Recipe holds the core row of a recipe. Optional columns are nil when NULL.
type Recipe struct {
	ID                     string
	Title                  string
	Description            *string
	MealType               *string
	Difficulty             *string
	PrepTimeMinutes        *int64
	CookTimeMinutes        *int64
	TotalTimeMinutes       *int64
	Servings               *int64
	ImageURL               *string
	SourceURL              *string
	SourceType             *string
	Instructions           *string
	PercentCaloriesProtein *float64
	PercentCaloriesFat     *float64
	PercentCaloriesCarbs   *float64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NutritionFact is the value of one nutrient for the recipe.
type NutritionFact struct {
	NutrientID        string
	NutrientName      *string
	Amount            *float64
	Unit              *string
	PerAmount         *float64
	PerAmountGrams    *float64
	PercentDailyValue *float64
	DataSource        *string
	ConfidenceScore   *float64
	MeasurementDate   *time.Time
}

// Validate implements validation.Validatable.
func (n NutritionFact) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.NutrientID, validation.Required),
		validation.Field(&n.Amount, validation.Min(0.0)),
		validation.Field(&n.PerAmountGrams, validation.Min(0.0)),
		validation.Field(&n.ConfidenceScore, validation.Min(0.0), validation.Max(1.0)),
	)
}

// IngredientEntry is one line of the recipe's ingredient list.
type IngredientEntry struct {
	IngredientID        string
	Name                *string
	Quantity            *float64
	Unit                *string
	QuantityNormalizedG *float64
	Order               *int64
	PreparationNote     *string
	Optional            bool
	ProductID           *string
	ProductName         *string
}

// Validate implements validation.Validatable.
func (i IngredientEntry) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.IngredientID, validation.Required),
		validation.Field(&i.Quantity, validation.Min(0.0)),
		validation.Field(&i.QuantityNormalizedG, validation.Min(0.0)),
		validation.Field(&i.ProductID, validation.NilOrNotEmpty),
	)
}

// RatingSummary aggregates the recipe's rating rows. Both fields are zero without ratings.
type RatingSummary struct {
	Count   int64
	Average float64
}

// Cuisine is the optional cuisine reference of a recipe.
type Cuisine struct {
	ID   string
	Name *string
	Code *string
}

// RecipeAggregate is the consistency unit projected into the graph. It is loaded per
// event and never persisted by this service.
type RecipeAggregate struct {
	Recipe         Recipe
	NutritionFacts []NutritionFact
	Ingredients    []IngredientEntry
	Ratings        RatingSummary
	Cuisine        *Cuisine
}

// Validate checks the aggregate can be projected without ambiguity. Failures wrap
// ErrInvalidAggregate and are permanent.
func (a *RecipeAggregate) Validate() error {
	err := validation.Errors{
		"recipe": validation.ValidateStruct(&a.Recipe,
			validation.Field(&a.Recipe.ID, validation.Required, appValidation.NotBlank),
			validation.Field(&a.Recipe.Title, validation.Required, appValidation.NotBlank),
			validation.Field(&a.Recipe.Servings, validation.Min(int64(0))),
		),
		"nutrition_facts": validation.Validate(a.NutritionFacts,
			appValidation.UniqueKeys[NutritionFact]{
				Key:  func(n NutritionFact) string { return n.NutrientID },
				Name: "nutrient id",
			},
		),
		"ingredients": validation.Validate(a.Ingredients,
			appValidation.UniqueKeys[IngredientEntry]{
				Key:  func(i IngredientEntry) string { return i.IngredientID },
				Name: "ingredient id",
			},
		),
		"ratings": validation.ValidateStruct(&a.Ratings,
			validation.Field(&a.Ratings.Count, validation.Min(int64(0))),
			validation.Field(&a.Ratings.Average, validation.Min(0.0), validation.Max(5.0)),
		),
	}.Filter()
	if err == nil && a.Cuisine != nil {
		err = validation.ValidateStruct(a.Cuisine, validation.Field(&a.Cuisine.ID, validation.Required))
	}
	if err != nil {
		return errors.Wrap(ErrInvalidAggregate, err.Error())
	}
	return nil
}
