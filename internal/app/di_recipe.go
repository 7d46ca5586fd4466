package app

import (
	"fmt"

	recipeRepository "github.com/allisson/recipegraph/internal/recipe/repository"
	recipeUsecase "github.com/allisson/recipegraph/internal/recipe/usecase"
)

// RecipeRepository returns the aggregate loader for the recipe source of truth.
func (c *Container) RecipeRepository() (recipeUsecase.RecipeRepository, error) {
	var err error
	c.recipeRepoInit.Do(func() {
		c.recipeRepo, err = c.initRecipeRepository()
		if err != nil {
			c.initErrors["recipeRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recipeRepo"]; exists {
		return nil, storedErr
	}
	return c.recipeRepo, nil
}

// ProjectorUseCase returns the recipe projector.
func (c *Container) ProjectorUseCase() (recipeUsecase.ProjectorUseCase, error) {
	var err error
	c.projectorUseCaseInit.Do(func() {
		c.projectorUseCase, err = c.initProjectorUseCase()
		if err != nil {
			c.initErrors["projectorUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["projectorUseCase"]; exists {
		return nil, storedErr
	}
	return c.projectorUseCase, nil
}

// ReconcilerUseCase returns the recipe reconciler.
func (c *Container) ReconcilerUseCase() (recipeUsecase.ReconcilerUseCase, error) {
	var err error
	c.reconcilerUseCaseInit.Do(func() {
		c.reconcilerUseCase, err = c.initReconcilerUseCase()
		if err != nil {
			c.initErrors["reconcilerUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["reconcilerUseCase"]; exists {
		return nil, storedErr
	}
	return c.reconcilerUseCase, nil
}

// RouterUseCase returns the router that turns outbox events into graph writes.
func (c *Container) RouterUseCase() (recipeUsecase.RouterUseCase, error) {
	var err error
	c.routerUseCaseInit.Do(func() {
		c.routerUseCase, err = c.initRouterUseCase()
		if err != nil {
			c.initErrors["routerUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["routerUseCase"]; exists {
		return nil, storedErr
	}
	return c.routerUseCase, nil
}

func (c *Container) initRecipeRepository() (recipeUsecase.RecipeRepository, error) {
	db, err := c.SourceDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get source database for recipe repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return recipeRepository.NewMySQLRecipeRepository(db), nil
	case "postgres":
		return recipeRepository.NewPostgreSQLRecipeRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initProjectorUseCase() (recipeUsecase.ProjectorUseCase, error) {
	store, err := c.GraphStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get graph store for projector use case: %w", err)
	}

	baseUseCase := recipeUsecase.NewProjectorUseCase(store, c.config.GraphTxTimeout, c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for projector use case: %w", err)
		}
		return recipeUsecase.NewProjectorUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

func (c *Container) initReconcilerUseCase() (recipeUsecase.ReconcilerUseCase, error) {
	store, err := c.GraphStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get graph store for reconciler use case: %w", err)
	}

	baseUseCase := recipeUsecase.NewReconcilerUseCase(store, c.config.GraphTxTimeout, c.Logger())

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for reconciler use case: %w", err)
		}
		return recipeUsecase.NewReconcilerUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

func (c *Container) initRouterUseCase() (recipeUsecase.RouterUseCase, error) {
	repo, err := c.RecipeRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe repository for router use case: %w", err)
	}
	projector, err := c.ProjectorUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get projector for router use case: %w", err)
	}
	reconciler, err := c.ReconcilerUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciler for router use case: %w", err)
	}

	baseUseCase := recipeUsecase.NewRouterUseCase(
		recipeUsecase.RouterConfig{
			LoadTimeout:     c.config.LoadTimeout,
			ConflictRetries: c.config.ConflictRetries,
		},
		repo,
		projector,
		reconciler,
		c.Logger(),
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for router use case: %w", err)
		}
		return recipeUsecase.NewRouterUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
