// internal/nutrition/parser.go
package nutrition

import (
	"strings"

	"github.com/tidwall/gjson"

	"mcp-plate-log/internal/models"
)

const opParse = "parse"

// ParseResponse decodes the analyzer's reply into an AnalysisResult.
//
// A string "error" field wins over everything else and yields a
// KindServerRejected error. Otherwise "summary" (object) and "foods" (array)
// are required; numeric fields are coerced with the string-or-number rule and
// fall back to zero. Food entries without a name are skipped, so a noisy
// detection still produces a partial result.
func ParseResponse(body []byte) (*models.AnalysisResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, newError(KindMalformedResponse, opParse, "response is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, newError(KindMalformedResponse, opParse, "response is not a JSON object")
	}

	if reason := root.Get("error"); reason.Type == gjson.String {
		return nil, newError(KindServerRejected, opParse, reason.Str)
	}

	summary := root.Get("summary")
	if !summary.IsObject() {
		return nil, newError(KindMalformedResponse, opParse, "missing summary")
	}

	foods := root.Get("foods")
	if !foods.IsArray() {
		return nil, newError(KindMalformedResponse, opParse, "missing foods")
	}

	result := &models.AnalysisResult{
		Summary: parseSummary(summary),
		Foods:   make([]models.FoodItem, 0, len(foods.Array())),
	}

	foods.ForEach(func(_, entry gjson.Result) bool {
		if item, ok := parseFood(entry); ok {
			result.Foods = append(result.Foods, item)
		}
		return true
	})

	return result, nil
}

func parseSummary(v gjson.Result) models.Summary {
	return models.Summary{
		Calories: numberOrZero(v.Get("calories")),
		Carbs:    numberOrZero(v.Get("carbs")),
		Fat:      numberOrZero(v.Get("fat")),
		Fiber:    numberOrZero(v.Get("fiber")),
		Protein:  numberOrZero(v.Get("protein")),
		Energy:   optionalNumber(v.Get("energy")),
	}
}

func parseFood(v gjson.Result) (models.FoodItem, bool) {
	if !v.IsObject() {
		return models.FoodItem{}, false
	}

	name := v.Get("food")
	if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return models.FoodItem{}, false
	}

	return models.FoodItem{
		Name:     strings.TrimSpace(name.Str),
		Quantity: numberOrZero(v.Get("quantity_grams")),
		Calories: numberOrZero(v.Get("calories")),
		Carbs:    numberOrZero(v.Get("carbs")),
		Fat:      numberOrZero(v.Get("fat")),
		Fiber:    numberOrZero(v.Get("fiber")),
		Protein:  numberOrZero(v.Get("protein")),
	}, true
}
