package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"loreweave/internal/api"
	"loreweave/internal/config"
	"loreweave/internal/logging"
	"loreweave/internal/metrics"
	"loreweave/internal/services"
)

const maxRequestBody = 4 << 20

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	svc      *api.Service
	validate *validator.Validate
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.Paths.APIBind),
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		svc:      d.service,
		validate: newValidator(),
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(strings.TrimSpace(cfg.Paths.APIToken)))
		r.Get("/status", srv.handleStatus)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", srv.handleTriggerAnalysis)
			r.Get("/", srv.handleListJobs)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", srv.handleGetJob)
				r.Get("/items", srv.handleListItems)
				r.Post("/batch-resolve", srv.handleBatchResolve)
				r.Post("/enrichment", srv.handleTriggerEnrichment)
				r.Delete("/enrichment", srv.handleCancelEnrichment)
			})
		})
		r.Post("/items/{itemID}/resolve", srv.handleResolveItem)
		r.Post("/items/{itemID}/revert", srv.handleRevertItem)
		r.Get("/pending-count", srv.handlePendingCount)
		r.Get("/campaigns/{campaignID}/entities", srv.handleListEntities)
		r.Post("/campaigns/{campaignID}/entities", srv.handleCreateEntity)
	})
	srv.handler = r
	return srv
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
			)
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	var req api.TriggerAnalysisRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.TriggerAnalysis(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var parsed api.JobQuery
	var err error
	if parsed.CampaignID, err = optionalInt(query, "campaignId"); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if parsed.SourceID, err = optionalInt(query, "sourceId"); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	limit, err := optionalInt(query, "limit")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	parsed.Limit = int(limit)
	parsed.SourceTable = query.Get("sourceTable")
	parsed.SourceField = query.Get("sourceField")
	parsed.Status = query.Get("status")

	list, err := s.svc.ListJobs(r.Context(), parsed)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: list})
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r, "jobID")
	if !ok {
		return
	}
	job, err := s.svc.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: job})
}

func (s *apiServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r, "jobID")
	if !ok {
		return
	}
	query := r.URL.Query()
	items, err := s.svc.ListJobItems(r.Context(), jobID, api.ItemQuery{
		Resolution:    query.Get("resolution"),
		Phase:         query.Get("phase"),
		DetectionType: query.Get("detectionType"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: items})
}

func (s *apiServer) handleBatchResolve(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r, "jobID")
	if !ok {
		return
	}
	var req api.BatchResolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.BatchResolve(r.Context(), jobID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTriggerEnrichment(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r, "jobID")
	if !ok {
		return
	}
	resp, err := s.svc.TriggerEnrichment(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleCancelEnrichment(w http.ResponseWriter, r *http.Request) {
	jobID, ok := s.pathID(w, r, "jobID")
	if !ok {
		return
	}
	resp, err := s.svc.CancelEnrichment(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleResolveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := s.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req api.ResolveItemRequest
	if !s.decode(w, r, &req) {
		return
	}
	item, err := s.svc.ResolveItem(r.Context(), itemID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemResponse{Item: item})
}

func (s *apiServer) handleRevertItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := s.pathID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := s.svc.RevertItem(r.Context(), itemID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemResponse{Item: item})
}

func (s *apiServer) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	campaignID, err := optionalInt(query, "campaignId")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sourceID, err := optionalInt(query, "sourceId")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	count, err := s.svc.PendingCount(r.Context(), campaignID, query.Get("sourceTable"), sourceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PendingCountResponse{Count: count})
}

func (s *apiServer) handleListEntities(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := s.pathID(w, r, "campaignID")
	if !ok {
		return
	}
	list, err := s.svc.ListEntities(r.Context(), campaignID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EntityListResponse{Entities: list})
}

func (s *apiServer) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := s.pathID(w, r, "campaignID")
	if !ok {
		return
	}
	var req api.CreateEntityRequest
	if !s.decode(w, r, &req) {
		return
	}
	entity, err := s.svc.CreateEntity(r.Context(), campaignID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.EntityResponse{Entity: entity})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api", "decode request", "request body is not valid JSON: "+err.Error(), nil))
		return false
	}
	if err := s.validate.Struct(target); err != nil {
		s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api", "validate request", describeValidation(err), nil))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required", "required_if":
			problems = append(problems, fe.Field()+" is required")
		case "oneof":
			problems = append(problems, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "gt":
			problems = append(problems, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		default:
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(problems, "; ")
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeServiceError(w, r, services.Wrap(services.ErrValidation, "api", "parse path", fmt.Sprintf("invalid %s %q", param, raw), nil))
		return 0, false
	}
	return id, true
}

func optionalInt(query map[string][]string, key string) (int64, error) {
	values := query[key]
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil || value < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "parse query", fmt.Sprintf("invalid %s %q", key, values[0]), nil)
	}
	return value, nil
}

func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "already_resolved", "not_resolved", "invalid_state":
		return http.StatusConflict
	case "unsupported_resolution":
		return http.StatusUnprocessableEntity
	case "provider":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	details := services.Details(err)
	status := statusForKind(details.Kind)
	requestID, _ := services.RequestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_request_failed",
			logging.String("cause", details.Cause),
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorHint, "check the daemon log for the failing operation"),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: details.Message, Kind: details.Kind, RequestID: requestID})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
