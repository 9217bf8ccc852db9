// internal/server/tools.go
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/sirupsen/logrus"

	"mcp-plate-log/internal/models"
	"mcp-plate-log/internal/storage"
)

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type AnalyzeMealParams struct {
	ImageBase64 string    `json:"image_base64" description:"JPEG photo of the meal, base64 encoded (data URLs accepted)"`
	Weights     []float64 `json:"weights" description:"Portion weights in grams, one per plate section"`
	MealName    string    `json:"meal_name,omitempty" description:"Label for the meal log; never sent to the analyzer"`
	Save        *bool     `json:"save,omitempty" description:"Persist the analysed meal (defaults to true)"`
}

type GetMealsParams struct {
	StartDate string `json:"start_date,omitempty" description:"Start date for meal query (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" description:"End date for meal query (YYYY-MM-DD)"`
	Limit     int    `json:"limit,omitempty" description:"Maximum number of meals to return"`
}

type DeleteMealParams struct {
	ID string `json:"id" description:"Meal id"`
}

type GetProfileParams struct {
	UserID string `json:"user_id,omitempty" description:"Profile owner (defaults to the signed-in user)"`
}

type SetProfileParams struct {
	UserID     string            `json:"user_id,omitempty" description:"Profile owner (defaults to the signed-in user)"`
	Attributes map[string]string `json:"attributes" description:"Health attributes to merge into the profile"`
}

// AnalyzeMealResult is the analyze_meal payload. Meal is nil when the
// analysis was not persisted.
type AnalyzeMealResult struct {
	Analysis       *models.AnalysisResult `json:"analysis"`
	DisplayNames   []string               `json:"display_names"`
	NoFoodDetected bool                   `json:"no_food_detected"`
	Meal           *models.LoggedMeal     `json:"meal,omitempty"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	// Convert the Arguments map to JSON bytes, then unmarshal to target
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return nil
}

func (s *MealLogServer) registerTools() {
	s.tools = map[string]toolHandler{
		"analyze_meal": s.handleAnalyzeMeal,
		"get_meals":    s.handleGetMeals,
		"delete_meal":  s.handleDeleteMeal,
		"get_profile":  s.handleGetProfile,
		"set_profile":  s.handleSetProfile,
	}

	for _, name := range s.toolNames() {
		s.logger.WithField("tool", name).Debug("registered tool")
	}
}

func (s *MealLogServer) toolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// currentUser resolves the user a tool call acts for.
func (s *MealLogServer) currentUser(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if s.users != nil {
		if id := s.users.CurrentUser(); id != "" {
			return id, nil
		}
	}
	if s.config.UserID != "" {
		return s.config.UserID, nil
	}
	return "", &toolError{status: http.StatusUnauthorized, err: errors.New("no signed-in user")}
}

// handleAnalyzeMeal uploads the photo for analysis and logs the meal once
// the analysis fully succeeded.
func (s *MealLogServer) handleAnalyzeMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AnalyzeMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, badRequest(fmt.Errorf("invalid parameters: %w", err))
	}

	image, err := decodeImage(params.ImageBase64)
	if err != nil {
		return nil, badRequest(err)
	}

	upload := &models.UploadRequest{
		Image:    image,
		Weights:  params.Weights,
		MealName: strings.TrimSpace(params.MealName),
	}
	if upload.MealName == "" {
		upload.MealName = "Meal"
	}

	analysis, err := s.analyzer.Submit(ctx, upload)
	if err != nil {
		return nil, err
	}

	result := AnalyzeMealResult{
		Analysis:       analysis,
		DisplayNames:   make([]string, 0, len(analysis.Foods)),
		NoFoodDetected: !analysis.HasFoods(),
	}
	for _, food := range analysis.Foods {
		result.DisplayNames = append(result.DisplayNames, food.DisplayName())
	}

	save := params.Save == nil || *params.Save
	if save && analysis.HasFoods() {
		userID, err := s.currentUser("")
		if err != nil {
			return nil, err
		}

		meal := models.NewLoggedMeal(s.newID(), userID, upload, analysis, s.now())
		if err := s.storage.SaveMeal(ctx, meal); err != nil {
			return nil, fmt.Errorf("failed to save meal: %w", err)
		}
		if s.collectors != nil {
			s.collectors.MealLogged()
		}
		s.logger.WithFields(logrus.Fields{
			"meal_id":  meal.ID,
			"foods":    len(meal.Foods),
			"calories": meal.Summary.Calories,
		}).Info("meal logged")
		result.Meal = meal
	}

	return s.createJSONResponse(result)
}

// handleGetMeals retrieves the signed-in user's meals from storage
func (s *MealLogServer) handleGetMeals(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetMealsParams
	if err := extractParams(req, &params); err != nil {
		return nil, badRequest(fmt.Errorf("invalid parameters: %w", err))
	}

	for _, date := range []string{params.StartDate, params.EndDate} {
		if date == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, badRequest(fmt.Errorf("invalid date %q, want YYYY-MM-DD", date))
		}
	}

	userID, err := s.currentUser("")
	if err != nil {
		return nil, err
	}

	meals, err := s.storage.GetMeals(ctx, storage.MealQuery{
		UserID:    userID,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
		Limit:     params.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve meals: %w", err)
	}
	if meals == nil {
		meals = []*models.LoggedMeal{}
	}

	return s.createJSONResponse(meals)
}

func (s *MealLogServer) handleDeleteMeal(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DeleteMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, badRequest(fmt.Errorf("invalid parameters: %w", err))
	}
	if params.ID == "" {
		return nil, badRequest(errors.New("meal id is required"))
	}

	userID, err := s.currentUser("")
	if err != nil {
		return nil, err
	}

	err = s.storage.DeleteMeal(ctx, userID, params.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &toolError{status: http.StatusNotFound, err: fmt.Errorf("meal %s not found", params.ID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete meal: %w", err)
	}

	return s.createJSONResponse(map[string]interface{}{"deleted": params.ID})
}

func (s *MealLogServer) handleGetProfile(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetProfileParams
	if err := extractParams(req, &params); err != nil {
		return nil, badRequest(fmt.Errorf("invalid parameters: %w", err))
	}

	userID, err := s.currentUser(params.UserID)
	if err != nil {
		return nil, err
	}

	profile, err := s.storage.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return s.createJSONResponse(profile)
}

func (s *MealLogServer) handleSetProfile(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SetProfileParams
	if err := extractParams(req, &params); err != nil {
		return nil, badRequest(fmt.Errorf("invalid parameters: %w", err))
	}
	if len(params.Attributes) == 0 {
		return nil, badRequest(errors.New("at least one attribute is required"))
	}
	for name := range params.Attributes {
		if strings.TrimSpace(name) == "" {
			return nil, badRequest(errors.New("attribute name cannot be empty"))
		}
	}

	userID, err := s.currentUser(params.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.storage.SetProfile(ctx, userID, params.Attributes); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	profile, err := s.storage.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return s.createJSONResponse(profile)
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}
	if encoded == "" {
		return nil, errors.New("image_base64 is required")
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid image_base64: %w", err)
	}
	return image, nil
}
