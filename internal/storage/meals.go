// internal/storage/meals.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mcp-plate-log/internal/models"
)

const DefaultMealLimit = 20

// MealQuery filters the meal log. Dates are inclusive YYYY-MM-DD bounds
// compared against the UTC logging date; empty fields are ignored.
type MealQuery struct {
	UserID    string
	StartDate string
	EndDate   string
	Limit     int
}

func (s *SQLiteStorage) SaveMeal(ctx context.Context, meal *models.LoggedMeal) error {
	if meal == nil || meal.ID == "" {
		return errors.New("meal id is required")
	}

	weights, err := json.Marshal(meal.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	mealQuery := `
        INSERT INTO meals (id, user_id, name, serving, image_size, weights,
            calories, carbs, fat, fiber, protein, energy, logged_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	var energy sql.NullFloat64
	if meal.Summary.Energy != nil {
		energy = sql.NullFloat64{Float64: *meal.Summary.Energy, Valid: true}
	}
	_, err = tx.ExecContext(ctx, mealQuery,
		meal.ID, meal.UserID, meal.Name, meal.Serving, meal.ImageSize, string(weights),
		meal.Summary.Calories, meal.Summary.Carbs, meal.Summary.Fat, meal.Summary.Fiber,
		meal.Summary.Protein, energy, formatTime(meal.LoggedAt), formatTime(meal.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}

	foodQuery := `
        INSERT INTO foods (meal_id, name, quantity, calories, carbs, fat, fiber, protein)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	for _, food := range meal.Foods {
		_, err = tx.ExecContext(ctx, foodQuery,
			meal.ID, food.Name, food.Quantity, food.Calories,
			food.Carbs, food.Fat, food.Fiber, food.Protein)
		if err != nil {
			return fmt.Errorf("failed to insert food: %w", err)
		}
	}

	return tx.Commit()
}

// GetMeals returns logged meals newest first.
func (s *SQLiteStorage) GetMeals(ctx context.Context, q MealQuery) ([]*models.LoggedMeal, error) {
	query := `
        SELECT id, user_id, name, serving, image_size, weights,
            calories, carbs, fat, fiber, protein, energy, logged_at, created_at
        FROM meals
        WHERE 1=1
    `
	args := []interface{}{}

	if q.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, q.UserID)
	}
	if q.StartDate != "" {
		query += " AND DATE(logged_at) >= ?"
		args = append(args, q.StartDate)
	}
	if q.EndDate != "" {
		query += " AND DATE(logged_at) <= ?"
		args = append(args, q.EndDate)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultMealLimit
	}
	query += " ORDER BY logged_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query meals: %w", err)
	}

	var meals []*models.LoggedMeal
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		meals = append(meals, meal)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate meals: %w", err)
	}
	// release the single connection before loading foods
	rows.Close()

	for _, meal := range meals {
		if err := s.loadFoodsForMeal(ctx, meal); err != nil {
			return nil, fmt.Errorf("failed to load foods for meal %s: %w", meal.ID, err)
		}
	}

	return meals, nil
}

func (s *SQLiteStorage) GetMeal(ctx context.Context, id string) (*models.LoggedMeal, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, name, serving, image_size, weights,
            calories, carbs, fat, fiber, protein, energy, logged_at, created_at
        FROM meals
        WHERE id = ?
    `, id)

	meal, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadFoodsForMeal(ctx, meal); err != nil {
		return nil, fmt.Errorf("failed to load foods for meal %s: %w", meal.ID, err)
	}
	return meal, nil
}

// DeleteMeal removes a meal owned by userID together with its foods. A meal
// of another user is reported as ErrNotFound.
func (s *SQLiteStorage) DeleteMeal(ctx context.Context, userID, id string) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM meals WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete meal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete meal: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM foods WHERE meal_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete foods: %w", err)
	}

	return tx.Commit()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMeal(row scanner) (*models.LoggedMeal, error) {
	meal := &models.LoggedMeal{}
	var weights, loggedAt, createdAt string
	var energy sql.NullFloat64

	err := row.Scan(
		&meal.ID, &meal.UserID, &meal.Name, &meal.Serving, &meal.ImageSize, &weights,
		&meal.Summary.Calories, &meal.Summary.Carbs, &meal.Summary.Fat, &meal.Summary.Fiber,
		&meal.Summary.Protein, &energy, &loggedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan meal: %w", err)
	}

	if energy.Valid {
		value := energy.Float64
		meal.Summary.Energy = &value
	}
	if err := json.Unmarshal([]byte(weights), &meal.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}
	if meal.LoggedAt, err = parseTime(loggedAt); err != nil {
		return nil, fmt.Errorf("failed to parse logged_at: %w", err)
	}
	if meal.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return meal, nil
}

func (s *SQLiteStorage) loadFoodsForMeal(ctx context.Context, meal *models.LoggedMeal) error {
	query := `
        SELECT name, quantity, calories, carbs, fat, fiber, protein
        FROM foods
        WHERE meal_id = ?
        ORDER BY id
    `

	rows, err := s.db.QueryContext(ctx, query, meal.ID)
	if err != nil {
		return fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	foods := []models.FoodItem{}
	for rows.Next() {
		food := models.FoodItem{}
		err := rows.Scan(
			&food.Name, &food.Quantity, &food.Calories,
			&food.Carbs, &food.Fat, &food.Fiber, &food.Protein)
		if err != nil {
			return fmt.Errorf("failed to scan food: %w", err)
		}
		foods = append(foods, food)
	}

	meal.Foods = foods
	return rows.Err()
}
