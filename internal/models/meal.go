// internal/models/meal.go
package models

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ImageContentType is the only image encoding the analysis service accepts.
const ImageContentType = "image/jpeg"

// DefaultServing is the serving label attached to logged meals.
const DefaultServing = "1 serving"

// UploadRequest is one photographed meal waiting for analysis. It is built
// per user action and consumed by a single submit.
type UploadRequest struct {
	Image    []byte    `json:"-"`
	Weights  []float64 `json:"weights"`   // portion weights in grams, in entry order
	MealName string    `json:"meal_name"` // kept client-side, never sent to the analyzer
}

type Summary struct {
	Calories float64  `json:"calories"`
	Carbs    float64  `json:"carbs"`
	Fat      float64  `json:"fat"`
	Fiber    float64  `json:"fiber"`
	Protein  float64  `json:"protein"`
	Energy   *float64 `json:"energy,omitempty"`
}

// EnergyValue returns the reported energy, or zero when the server omitted it.
func (s Summary) EnergyValue() float64 {
	if s.Energy == nil {
		return 0
	}
	return *s.Energy
}

type FoodItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"` // grams
	Calories float64 `json:"calories"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
	Protein  float64 `json:"protein"`
}

// DisplayName title-cases the detected food name ("grilled chicken" -> "Grilled Chicken").
func (f FoodItem) DisplayName() string {
	return cases.Title(language.Und).String(f.Name)
}

// AnalysisResult is the typed nutrition breakdown of one submitted meal.
// Summary is computed by the remote service and is not reconciled with Foods.
type AnalysisResult struct {
	Summary Summary    `json:"summary"`
	Foods   []FoodItem `json:"foods"`
}

// HasFoods reports whether at least one food was detected.
func (r *AnalysisResult) HasFoods() bool {
	return r != nil && len(r.Foods) > 0
}

// LoggedMeal is the caller-owned record of an analysed meal.
type LoggedMeal struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Serving   string     `json:"serving"`
	ImageSize int        `json:"image_size"`
	Weights   []float64  `json:"weights"`
	Summary   Summary    `json:"summary"`
	Foods     []FoodItem `json:"foods"`
	LoggedAt  time.Time  `json:"logged_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewLoggedMeal builds a meal record from a successful analysis.
func NewLoggedMeal(id, userID string, req *UploadRequest, result *AnalysisResult, now time.Time) *LoggedMeal {
	foods := make([]FoodItem, len(result.Foods))
	copy(foods, result.Foods)
	weights := make([]float64, len(req.Weights))
	copy(weights, req.Weights)

	return &LoggedMeal{
		ID:        id,
		UserID:    userID,
		Name:      req.MealName,
		Serving:   DefaultServing,
		ImageSize: len(req.Image),
		Weights:   weights,
		Summary:   result.Summary,
		Foods:     foods,
		LoggedAt:  now,
		CreatedAt: now,
	}
}
