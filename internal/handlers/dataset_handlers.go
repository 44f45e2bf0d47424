package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/query"
	"github.com/adamrehn/ClimateQuery/internal/services"
	"github.com/adamrehn/ClimateQuery/pkg/logging"
	"github.com/adamrehn/ClimateQuery/pkg/metrics"
)

// DatasetHandler handles the dataset API endpoints
type DatasetHandler struct {
	datasets  *services.DatasetService
	validator *services.Validator
	catalog   *query.Catalog
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(
	datasets *services.DatasetService,
	validator *services.Validator,
	catalog *query.Catalog,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *DatasetHandler {
	return &DatasetHandler{
		datasets:  datasets,
		validator: validator,
		catalog:   catalog,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListResponse wraps a collection
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
}

// CreateDatasetRequest is the body of POST /api/datasets
type CreateDatasetRequest struct {
	Name    string             `json:"name"`
	Request models.DataRequest `json:"request"`
}

// TimeRange bounds an export by year and month, inclusive at both ends
type TimeRange struct {
	StartYear  int `json:"startYear"`
	StartMonth int `json:"startMonth"`
	EndYear    int `json:"endYear"`
	EndMonth   int `json:"endMonth"`
}

// ExportRequest is the body of POST /api/datasets/{id}/export. An empty query exports every row.
type ExportRequest struct {
	Query       string                  `json:"query"`
	Parameters  map[string]models.Value `json:"parameters"`
	TimeRange   *TimeRange              `json:"timeRange"`
	Aggregation []string                `json:"aggregation"`
}

// HealthCheck handles GET /health
func (h *DatasetHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.datasets.List(ctx); err != nil {
		h.logger.Error(ctx, "[HEALTH_CHECK_ERROR] Catalog index unavailable", logging.Fields{}, err)
		h.sendJSON(w, map[string]string{"status": "unhealthy"}, http.StatusServiceUnavailable)
		return
	}

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// ListDatasets handles GET /api/datasets
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.datasets.List(r.Context())
	if err != nil {
		h.handleError(w, r, "failed to list datasets", err)
		return
	}

	if datasets == nil {
		datasets = []*models.Dataset{}
	}
	h.sendJSON(w, ListResponse{Data: datasets, Total: len(datasets)}, http.StatusOK)
}

// CreateDataset handles POST /api/datasets. The build runs within the request.
func (h *DatasetHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body CreateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, r, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := body.Request.Validate(); err != nil {
		h.handleError(w, r, "invalid data request", err)
		return
	}

	dataset, err := h.datasets.Create(ctx, body.Name, &body.Request, func(p models.BuildProgress) {
		h.logger.Debug(ctx, "[API_BUILD_PROGRESS] "+p.String(), logging.Fields{
			"dataset":  body.Name,
			"progress": p.PercentComplete(),
		})
	})
	if err != nil {
		h.handleError(w, r, "failed to build dataset", err)
		return
	}

	h.sendJSON(w, dataset, http.StatusCreated)
}

// GetDataset handles GET /api/datasets/{id}
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.datasets.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, "failed to get dataset", err)
		return
	}

	h.sendJSON(w, dataset, http.StatusOK)
}

// DeleteDataset handles DELETE /api/datasets/{id}
func (h *DatasetHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.datasets.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.handleError(w, r, "failed to delete dataset", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListQueries handles GET /api/datasets/{id}/queries
func (h *DatasetHandler) ListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := h.datasets.SupportedQueries(r.Context(), mux.Vars(r)["id"], h.catalog)
	if err != nil {
		h.handleError(w, r, "failed to list supported queries", err)
		return
	}

	if queries == nil {
		queries = []*query.Query{}
	}
	h.sendJSON(w, ListResponse{Data: queries, Total: len(queries)}, http.StatusOK)
}

// GetPresence handles GET /api/datasets/{id}/presence
func (h *DatasetHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	report, err := h.datasets.PresenceReport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleError(w, r, "failed to compute presence report", err)
		return
	}

	h.sendJSON(w, report, http.StatusOK)
}

// ExportDataset handles POST /api/datasets/{id}/export and responds with CSV
func (h *DatasetHandler) ExportDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var body ExportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.sendError(w, r, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	dataset, err := h.datasets.Get(ctx, id)
	if err != nil {
		h.handleError(w, r, "failed to export dataset", err)
		return
	}

	q, err := h.prepareQuery(body, dataset)
	if err != nil {
		h.handleError(w, r, "invalid export query", err)
		return
	}

	var buf bytes.Buffer
	if err := h.datasets.ExportTo(ctx, id, &buf, q); err != nil {
		h.handleError(w, r, "failed to export dataset", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// prepareQuery resolves the named catalog query against the dataset and applies the body's
// parameters, time range and aggregation. It returns nil for an unnamed export.
func (h *DatasetHandler) prepareQuery(body ExportRequest, dataset *models.Dataset) (*query.Query, error) {
	if body.Query == "" {
		if body.TimeRange != nil || len(body.Aggregation) > 0 || len(body.Parameters) > 0 {
			return nil, &models.ValidationError{Field: "query", Message: "a query name is required with parameters, time range or aggregation"}
		}
		return nil, nil
	}

	q, err := h.catalog.FindFor(body.Query, dataset)
	if err != nil {
		return nil, err
	}

	for name, value := range body.Parameters {
		if !strings.HasPrefix(name, "$") {
			name = "$" + name
		}
		if err := q.SetParameter(name, value); err != nil {
			return nil, err
		}
	}

	if tr := body.TimeRange; tr != nil {
		if tr.StartMonth < 1 || tr.StartMonth > 12 || tr.EndMonth < 1 || tr.EndMonth > 12 {
			return nil, &models.ValidationError{Field: "timeRange", Message: "months must be between 1 and 12"}
		}
		if query.DecimalYear(tr.EndYear, tr.EndMonth) < query.DecimalYear(tr.StartYear, tr.StartMonth) {
			return nil, &models.ValidationError{Field: "timeRange", Message: "time range ends before it starts"}
		}
		q.ApplyTimeRange(dataset.Granularity, tr.StartYear, tr.StartMonth, tr.EndYear, tr.EndMonth)
	}

	if len(body.Aggregation) > 0 {
		if err := q.ApplyAggregation(body.Aggregation, dataset.Granularity); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// ValidateRequest handles POST /api/requests/validate
func (h *DatasetHandler) ValidateRequest(w http.ResponseWriter, r *http.Request) {
	var request models.DataRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.sendError(w, r, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := request.Validate(); err != nil {
		h.handleError(w, r, "invalid data request", err)
		return
	}

	report, err := h.validator.Validate(r.Context(), &request)
	if err != nil {
		h.handleError(w, r, "failed to validate data request", err)
		return
	}

	h.sendJSON(w, report, http.StatusOK)
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	var (
		validationErr *models.ValidationError
		discoveryErr  *models.FileDiscoveryError
		parseErr      *models.ParseError
		notFoundErr   *models.NotFoundError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &discoveryErr), errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err and sends the mapped status. Client errors carry the error text,
// server errors only the generic message.
func (h *DatasetHandler) handleError(w http.ResponseWriter, r *http.Request, message string, err error) {
	ctx := r.Context()
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		h.logger.Error(ctx, "[API_ERROR] "+message, logging.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
		}, err)
		h.metrics.RecordAPIError("internal_error", routeTemplate(r))
		h.sendError(w, r, message, status)
		return
	}

	h.logger.Warn(ctx, "[API_CLIENT_ERROR] "+message, logging.Fields{
		"path":   r.URL.Path,
		"method": r.Method,
		"error":  err.Error(),
	})
	h.metrics.RecordAPIError("client_error", routeTemplate(r))
	h.sendError(w, r, err.Error(), status)
}

// sendJSON sends a JSON response
func (h *DatasetHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *DatasetHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all dataset API routes
func (h *DatasetHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestID, Instrument(h.metrics))

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/datasets", h.ListDatasets).Methods("GET")
	api.HandleFunc("/datasets", h.CreateDataset).Methods("POST")
	api.HandleFunc("/datasets/{id}", h.GetDataset).Methods("GET")
	api.HandleFunc("/datasets/{id}", h.DeleteDataset).Methods("DELETE")
	api.HandleFunc("/datasets/{id}/queries", h.ListQueries).Methods("GET")
	api.HandleFunc("/datasets/{id}/presence", h.GetPresence).Methods("GET")
	api.HandleFunc("/datasets/{id}/export", h.ExportDataset).Methods("POST")
	api.HandleFunc("/requests/validate", h.ValidateRequest).Methods("POST")
	api.HandleFunc("/docs", SwaggerUI).Methods("GET")
	api.HandleFunc("/docs/openapi.json", OpenAPISpec).Methods("GET")
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
