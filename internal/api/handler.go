package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/inference"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	service   *scoring.Service
	engine    *inference.Engine // nil when scoring runs remotely
	overrides *rules.Engine
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(service *scoring.Service, engine *inference.Engine, overrides *rules.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		service:   service,
		engine:    engine,
		overrides: overrides,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		version:   version,
	}
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	Prediction *domain.PredictionResult `json:"prediction"`
	Features   *features.FeatureSet     `json:"features,omitempty"`
	Metadata   struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// decodeInput reads one request body as either a pre-processed feature map
// (detected by a numeric V1 key) or a raw transaction. The mode is decided
// once at the boundary; a validation failure reports every offending field.
func decodeInput(body []byte) (domain.Input, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Input{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "body", Reason: "invalid JSON"},
		}}
	}

	if _, ok := raw["V1"]; ok {
		return decodeProcessed(raw)
	}
	return decodeRaw(body, raw)
}

func decodeProcessed(raw map[string]any) (domain.Input, error) {
	values := make(map[string]float64, len(raw))
	var fields []domain.FieldError
	for k, v := range raw {
		f, ok := v.(float64)
		if !ok {
			fields = append(fields, domain.FieldError{Field: k, Reason: "must be a number"})
			continue
		}
		values[k] = f
	}
	if len(fields) > 0 {
		return domain.Input{}, &domain.ValidationError{Fields: fields}
	}

	vec, err := domain.VectorFromMap(values)
	if err != nil {
		return domain.Input{}, err
	}
	return domain.NewProcessedInput(vec), nil
}

// decodeRaw validates the raw-transaction form. amount is required; its
// presence is checked against the decoded key set because a missing key and
// an explicit 0 are indistinguishable after unmarshaling into a float64.
func decodeRaw(body []byte, raw map[string]any) (domain.Input, error) {
	var req domain.TransactionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.Input{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "body", Reason: "invalid JSON"},
		}}
	}

	var fields []domain.FieldError
	var ts time.Time
	if req.Timestamp == "" {
		fields = append(fields, domain.FieldError{Field: "timestamp", Reason: "is required"})
	} else {
		var err error
		ts, err = time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "timestamp", Reason: "must be RFC 3339"})
		}
	}
	if _, ok := raw["amount"]; !ok {
		fields = append(fields, domain.FieldError{Field: "amount", Reason: "is required"})
	} else if req.Amount < 0 {
		fields = append(fields, domain.FieldError{Field: "amount", Reason: "must be non-negative"})
	}
	if len(fields) > 0 {
		return domain.Input{}, &domain.ValidationError{Fields: fields}
	}

	return domain.NewRawInput(req.ToTransaction(uuid.New().String(), ts)), nil
}

// scoreOptions derives the per-request options; ?cache=false opts out of
// the prediction cache.
func scoreOptions(r *http.Request) domain.ScoreOptions {
	return domain.ScoreOptions{
		UseCache: r.URL.Query().Get("cache") != "false",
	}
}

// Predict handles POST /predict: score one raw transaction or pre-processed
// vector synchronously.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	input, err := decodeInput(body)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	result, feats, err := h.service.Score(ctx, input, scoreOptions(r))
	if err != nil {
		h.writeScoreError(w, err)
		return
	}

	resp := PredictResponse{Prediction: result, Features: feats}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// BatchRequest is the request body for POST /predict/batch.
type BatchRequest struct {
	Inputs []json.RawMessage `json:"inputs"`
}

// PredictBatch handles POST /predict/batch. Items are scored independently
// in order; a bad item reports its error in place without failing the batch.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	var req BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	if len(req.Inputs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "inputs is required"})
		return
	}

	opts := scoreOptions(r)
	items := make([]domain.BatchItem, len(req.Inputs))
	for i, rawItem := range req.Inputs {
		items[i].Index = i
		input, err := decodeInput(rawItem)
		if err != nil {
			items[i].Error = err.Error()
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				items[i].Fields = verr.Fields
			}
			continue
		}

		result, _, err := h.service.Score(ctx, input, opts)
		if err != nil {
			items[i].Error = err.Error()
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				items[i].Fields = verr.Fields
			}
			continue
		}
		items[i].Result = result
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// ValidateDebug handles POST /debug/validate: run the input through
// decoding and feature extraction without invoking the model.
func (h *Handler) ValidateDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	input, err := decodeInput(body)
	if err != nil {
		writeValidationResult(w, err)
		return
	}

	vec, feats, err := h.service.Pipeline().Process(ctx, input)
	if err != nil {
		writeValidationResult(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"mode":     string(input.Kind),
		"vector":   vec.ToMap(),
		"features": feats,
	})
}

// writeValidationResult reports a validation outcome for the debug endpoint
// with a 200 status: the request itself succeeded, the payload did not.
func writeValidationResult(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":  false,
			"fields": verr.Fields,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "stats unavailable for remote scoring",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats(r.Context()))
}

// ClearCache handles DELETE /cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "cache unavailable for remote scoring",
		})
		return
	}
	if err := h.engine.ClearCache(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// GetPrediction retrieves a stored prediction by ID.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "repository not available"})
		return
	}

	result, err := h.repo.GetPrediction(ctx, id)
	if err != nil {
		slog.Error("failed to get prediction", "id", id, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "prediction not found"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetTransaction retrieves a stored transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "repository not available"})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, id)
	if err != nil {
		slog.Error("failed to get transaction", "id", id, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transaction not found"})
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ListRules returns the override rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.overrides.LoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a loaded override rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.overrides.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
}

// CreateRule validates, persists and loads an override rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.OverrideRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	if rule.ID == "" || rule.Name == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id, name, and expression are required"})
		return
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	if err := h.overrides.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rule: " + err.Error()})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveOverrideRule(ctx, &rule); err != nil {
			slog.Error("failed to save override rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save rule"})
			return
		}
	}

	if rule.Enabled {
		if err := h.overrides.LoadRule(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rule: " + err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusCreated, rule)
}

// DeleteRule removes an override rule from the store and the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo != nil {
		if err := h.repo.DeleteOverrideRule(ctx, ruleID); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
			return
		}
	}
	h.overrides.UnloadRule(ruleID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ReloadRules hot-reloads override rules from the repository.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "repository not available"})
		return
	}

	stored, err := h.repo.ListOverrideRules(ctx)
	if err != nil {
		slog.Error("failed to list override rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load rules"})
		return
	}

	if err := h.overrides.ReloadRules(stored); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reload failed: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"count":  h.overrides.RulesCount(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	resp := map[string]string{
		"status":  status,
		"version": h.version,
	}
	if h.engine != nil {
		resp["model"] = h.engine.State().String()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether the server can score: the model must be Ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine != nil {
		if err := h.engine.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"model": h.engine.State().String(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// writeScoreError maps scoring failures to HTTP statuses: validation to
// 422 with the full field list, model-not-ready to 503, the rest to 500.
func (h *Handler) writeScoreError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, err)
		return
	}

	var notReady *domain.ModelNotReadyError
	if errors.As(err, &notReady) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": notReady.Error(),
		})
		return
	}

	slog.Error("scoring failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scoring failed"})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
