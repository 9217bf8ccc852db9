// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mcp-plate-log/internal/metrics"
	"mcp-plate-log/internal/models"
	"mcp-plate-log/internal/nutrition"
	"mcp-plate-log/internal/storage"
)

type Config struct {
	Host string
	Port int
	// UserID is used when no session is attached.
	UserID string
}

// Analyzer submits one meal photo for nutrition analysis.
type Analyzer interface {
	Submit(ctx context.Context, req *models.UploadRequest) (*models.AnalysisResult, error)
}

// Store is the persistence the tools need: the meal log and the profile store.
type Store interface {
	SaveMeal(ctx context.Context, meal *models.LoggedMeal) error
	GetMeals(ctx context.Context, q storage.MealQuery) ([]*models.LoggedMeal, error)
	DeleteMeal(ctx context.Context, userID, id string) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SetProfile(ctx context.Context, userID string, attrs map[string]string) error
}

// UserSource reports the signed-in user; *auth.Session implements it.
type UserSource interface {
	CurrentUser() string
}

type MealLogServer struct {
	info       protocol.Implementation
	httpServer *http.Server
	storage    Store
	analyzer   Analyzer
	users      UserSource
	collectors *metrics.Collectors
	logger     logrus.FieldLogger
	config     *Config
	tools      map[string]toolHandler

	newID func() string
	now   func() time.Time
}

type Option func(*MealLogServer)

func WithUsers(users UserSource) Option {
	return func(s *MealLogServer) { s.users = users }
}

func WithMetrics(collectors *metrics.Collectors) Option {
	return func(s *MealLogServer) { s.collectors = collectors }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *MealLogServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewMealLogServer(cfg *Config, stor Store, analyzer Analyzer, opts ...Option) (*MealLogServer, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if stor == nil {
		return nil, errors.New("storage is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}

	mealServer := &MealLogServer{
		info: protocol.Implementation{
			Name:    "plate-log",
			Version: "1.0.0",
		},
		storage:  stor,
		analyzer: analyzer,
		logger:   logrus.StandardLogger(),
		config:   cfg,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(mealServer)
	}

	mealServer.registerTools()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mealServer.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mealServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return mealServer, nil
}

// Handler returns the HTTP routes: tool calls on "/", plus health and metrics.
func (s *MealLogServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.collectors != nil {
		mux.Handle("/metrics", s.collectors.Handler())
	}
	return mux
}

func (s *MealLogServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"server": s.info,
			"tools":  s.toolNames(),
		})
		return
	case http.MethodPost:
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, badRequest(fmt.Errorf("invalid JSON: %w", err)))
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		s.writeError(w, &toolError{status: http.StatusNotFound, err: fmt.Errorf("unknown tool: %s", request.Name)})
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *MealLogServer) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting plate log server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *MealLogServer) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *MealLogServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

func (s *MealLogServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("failed to encode response")
	}
}

// toolError carries the HTTP status a tool failure should be reported with.
type toolError struct {
	status int
	err    error
}

func (e *toolError) Error() string { return e.err.Error() }
func (e *toolError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &toolError{status: http.StatusBadRequest, err: err}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *MealLogServer) writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	entry := s.logger.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Warn("tool call failed")
	} else {
		entry.Debug("tool call rejected")
	}
	s.writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var te *toolError
	if errors.As(err, &te) {
		return te.status, errorBody{Error: te.Error()}
	}

	kind := nutrition.KindOf(err)
	body := errorBody{Error: err.Error(), Kind: string(kind)}
	switch kind {
	case nutrition.KindValidation:
		return http.StatusBadRequest, body
	case nutrition.KindAuthentication:
		return http.StatusUnauthorized, body
	case nutrition.KindServerRejected:
		msg, _ := nutrition.RejectionMessage(err)
		body.Error = msg
		return http.StatusUnprocessableEntity, body
	case nutrition.KindNetwork, nutrition.KindMalformedResponse:
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, errorBody{Error: err.Error()}
}
