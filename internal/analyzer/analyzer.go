// internal/analyzer/analyzer.go
package analyzer

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// MaxUploadSize bounds the multipart form, image included.
	MaxUploadSize = 10 << 20

	NoFoodDetected = "no food detected"
)

// TokenVerifier checks a bearer token and returns the user it was issued to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type nutrientsPer100g struct {
	name     string
	calories float64
	carbs    float64
	fat      float64
	fiber    float64
	protein  float64
}

// portions are assigned to plate sections in order, wrapping around.
var catalog = []nutrientsPer100g{
	{name: "steamed rice", calories: 130, carbs: 28.2, fat: 0.3, fiber: 0.4, protein: 2.7},
	{name: "grilled chicken", calories: 165, carbs: 0, fat: 3.6, fiber: 0, protein: 31},
	{name: "broccoli", calories: 34, carbs: 6.6, fat: 0.4, fiber: 2.6, protein: 2.8},
	{name: "lentil curry", calories: 116, carbs: 20.1, fat: 0.4, fiber: 7.9, protein: 9},
}

// Service is a local stand-in for the remote nutrition analyzer. It speaks
// the same wire contract: multipart image + weights in, loosely typed JSON out.
type Service struct {
	verifier TokenVerifier
	logger   logrus.FieldLogger
}

func NewService(verifier TokenVerifier, logger logrus.FieldLogger) (*Service, error) {
	if verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{verifier: verifier, logger: logger}, nil
}

func (s *Service) Register(router gin.IRouter) {
	router.POST("/upload", s.handleUpload)
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
}

// NewRouter returns a gin engine serving only the analyzer routes.
func NewRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.Register(router)
	return router
}

func (s *Service) handleUpload(c *gin.Context) {
	userID, err := s.verifyAuth(c)
	if err != nil {
		s.logger.WithError(err).Warn("analyzer authentication failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	image, weights, err := s.parseUpload(c)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("analyzer request rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !isJPEG(image) {
		c.JSON(http.StatusOK, gin.H{"error": NoFoodDetected})
		return
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"image_size": len(image),
		"portions":   len(weights),
	}).Debug("analysing meal")

	c.JSON(http.StatusOK, analyse(weights))
}

func (s *Service) verifyAuth(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid auth header format")
	}
	return s.verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
}

func (s *Service) parseUpload(c *gin.Context) ([]byte, []float64, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)
	if err := c.Request.ParseMultipartForm(MaxUploadSize); err != nil {
		return nil, nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		return nil, nil, fmt.Errorf("image field is required")
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image: %w", err)
	}

	raw := c.Request.FormValue("weights")
	if raw == "" {
		return nil, nil, fmt.Errorf("weights field is required")
	}
	weights, err := parseWeights(raw)
	if err != nil {
		return nil, nil, err
	}
	return image, weights, nil
}

func parseWeights(raw string) ([]float64, error) {
	fields := strings.Split(raw, ",")
	weights := make([]float64, 0, len(fields))
	for _, f := range fields {
		w, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid weight %q", f)
		}
		weights = append(weights, w)
	}
	return weights, nil
}

func isJPEG(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFF, 0xD8})
}

// analyse computes one food per portion. The reply deliberately mixes
// string and number encodings, as the production analyzer does.
func analyse(weights []float64) gin.H {
	var calories, carbs, fat, fiber, protein float64
	foods := make([]gin.H, 0, len(weights))

	for i, w := range weights {
		item := catalog[i%len(catalog)]
		ratio := w / 100
		food := gin.H{
			"food":           item.name,
			"quantity_grams": w,
			"calories":       round1(item.calories * ratio),
			"carbs":          round1(item.carbs * ratio),
			"fat":            round1(item.fat * ratio),
			"fiber":          round1(item.fiber * ratio),
			"protein":        round1(item.protein * ratio),
		}
		if i%2 == 1 {
			for _, key := range []string{"quantity_grams", "calories", "carbs", "fat", "fiber", "protein"} {
				food[key] = strconv.FormatFloat(food[key].(float64), 'f', -1, 64)
			}
		}
		foods = append(foods, food)

		calories += item.calories * ratio
		carbs += item.carbs * ratio
		fat += item.fat * ratio
		fiber += item.fiber * ratio
		protein += item.protein * ratio
	}

	return gin.H{
		"summary": gin.H{
			"calories": strconv.FormatFloat(round1(calories), 'f', 1, 64),
			"carbs":    strconv.FormatFloat(round1(carbs), 'f', 1, 64),
			"fat":      round1(fat),
			"fiber":    round1(fiber),
			"protein":  strconv.FormatFloat(round1(protein), 'f', 1, 64),
			"energy":   round1(calories * 4.184),
		},
		"foods": foods,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
