package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-plate-log/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	stor, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "plate-log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { stor.Close() })
	return stor
}

func testMeal(id, userID string, loggedAt time.Time) *models.LoggedMeal {
	return &models.LoggedMeal{
		ID:        id,
		UserID:    userID,
		Name:      "Lunch " + id,
		Serving:   models.DefaultServing,
		ImageSize: 2048,
		Weights:   []float64{100, 50.5, 75.25, 10},
		Summary: models.Summary{
			Calories: 512.5,
			Carbs:    60,
			Fat:      12.25,
			Fiber:    7,
			Protein:  30,
		},
		Foods: []models.FoodItem{
			{Name: "steamed rice", Quantity: 150, Calories: 195, Carbs: 42.3, Fat: 0.5, Fiber: 0.6, Protein: 4},
			{Name: "grilled chicken", Quantity: 100, Calories: 165, Fat: 3.6, Protein: 31},
		},
		LoggedAt:  loggedAt,
		CreatedAt: loggedAt,
	}
}

func TestSQLiteStorage_SaveAndGetMeal(t *testing.T) {
	stor := newTestStorage(t)
	ctx := context.Background()

	energy := 2144.3
	meal := testMeal("meal-1", "user-1", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))
	meal.Summary.Energy = &energy
	require.NoError(t, stor.SaveMeal(ctx, meal))

	got, err := stor.GetMeal(ctx, "meal-1")
	require.NoError(t, err)

	assert.Equal(t, meal.Name, got.Name)
	assert.Equal(t, meal.Serving, got.Serving)
	assert.Equal(t, meal.ImageSize, got.ImageSize)
	assert.Equal(t, meal.Weights, got.Weights)
	assert.Equal(t, meal.Summary, got.Summary)
	assert.Equal(t, meal.Foods, got.Foods)
	assert.True(t, meal.LoggedAt.Equal(got.LoggedAt))
}

func TestSQLiteStorage_EnergyAbsent(t *testing.T) {
	stor := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, stor.SaveMeal(ctx, testMeal("meal-1", "user-1", time.Now())))

	got, err := stor.GetMeal(ctx, "meal-1")
	require.NoError(t, err)
	assert.Nil(t, got.Summary.Energy)
}

func TestSQLiteStorage_SaveMealRequiresID(t *testing.T) {
	stor := newTestStorage(t)
	assert.Error(t, stor.SaveMeal(context.Background(), testMeal("", "user-1", time.Now())))
	assert.Error(t, stor.SaveMeal(context.Background(), nil))
}

func TestSQLiteStorage_GetMeals(t *testing.T) {
	stor := newTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		meal := testMeal(fmt.Sprintf("meal-%d", i), "user-1", base.AddDate(0, 0, i))
		require.NoError(t, stor.SaveMeal(ctx, meal))
	}
	require.NoError(t, stor.SaveMeal(ctx, testMeal("other", "user-2", base)))

	t.Run("newest first", func(t *testing.T) {
		meals, err := stor.GetMeals(ctx, MealQuery{UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, meals, 5)
		assert.Equal(t, "meal-4", meals[0].ID)
		assert.Equal(t, "meal-0", meals[4].ID)
		assert.Len(t, meals[0].Foods, 2)
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		meals, err := stor.GetMeals(ctx, MealQuery{UserID: "user-1", StartDate: "2024-03-02", EndDate: "2024-03-04"})
		require.NoError(t, err)
		require.Len(t, meals, 3)
		assert.Equal(t, "meal-3", meals[0].ID)
		assert.Equal(t, "meal-1", meals[2].ID)
	})

	t.Run("limit", func(t *testing.T) {
		meals, err := stor.GetMeals(ctx, MealQuery{UserID: "user-1", Limit: 2})
		require.NoError(t, err)
		require.Len(t, meals, 2)
		assert.Equal(t, "meal-4", meals[0].ID)
	})

	t.Run("unknown user", func(t *testing.T) {
		meals, err := stor.GetMeals(ctx, MealQuery{UserID: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, meals)
	})
}

func TestSQLiteStorage_DeleteMeal(t *testing.T) {
	stor := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, stor.SaveMeal(ctx, testMeal("meal-1", "user-1", time.Now())))
	require.NoError(t, stor.DeleteMeal(ctx, "user-1", "meal-1"))

	_, err := stor.GetMeal(ctx, "meal-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, stor.DeleteMeal(ctx, "user-1", "meal-1"), ErrNotFound)
	assert.Error(t, stor.DeleteMeal(ctx, "", "meal-1"))
}

func TestSQLiteStorage_DeleteMealOwnedByOtherUser(t *testing.T) {
	stor := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, stor.SaveMeal(ctx, testMeal("meal-1", "user-1", time.Now())))

	assert.ErrorIs(t, stor.DeleteMeal(ctx, "user-2", "meal-1"), ErrNotFound)

	got, err := stor.GetMeal(ctx, "meal-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Len(t, got.Foods, 2)
}

func TestSQLiteStorage_Profile(t *testing.T) {
	stor := newTestStorage(t)
	ctx := context.Background()

	empty, err := stor.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, empty.Attributes)
	assert.Empty(t, empty.Attributes)
	assert.True(t, empty.UpdatedAt.IsZero())

	require.NoError(t, stor.SetProfile(ctx, "user-1", map[string]string{"age": "34", "goal": "maintain"}))
	require.NoError(t, stor.SetProfile(ctx, "user-1", map[string]string{"goal": "lose", "height_cm": "180"}))

	profile, err := stor.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"age": "34", "goal": "lose", "height_cm": "180"}, profile.Attributes)
	assert.False(t, profile.UpdatedAt.IsZero())

	other, err := stor.GetProfile(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other.Attributes)
}

func TestSQLiteStorage_ProfileValidation(t *testing.T) {
	stor := newTestStorage(t)
	ctx := context.Background()

	assert.Error(t, stor.SetProfile(ctx, "", map[string]string{"age": "34"}))
	assert.Error(t, stor.SetProfile(ctx, "user-1", map[string]string{" ": "x"}))
	_, err := stor.GetProfile(ctx, "")
	assert.Error(t, err)
}
