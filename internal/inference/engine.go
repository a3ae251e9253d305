package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// fingerprintSlots are the vector positions hashed into the cache key. They
// carry enough entropy to make collisions between distinct real transactions
// negligible while keeping the key cheap to build.
var fingerprintSlots = [...]int{
	domain.SlotTime,
	domain.SlotV1,
	14, // V14
	17, // V17
	domain.SlotAmount,
}

// featureRange bounds one vector slot. Ranges are wide enough to admit both
// scaled and unscaled inputs; anything outside them is a malformed payload,
// not an unusual transaction.
type featureRange struct {
	Min, Max float64
}

var featureRanges = buildFeatureRanges()

func buildFeatureRanges() [domain.VectorSize]featureRange {
	var r [domain.VectorSize]featureRange
	r[domain.SlotTime] = featureRange{Min: -100, Max: 200000}
	for i := 1; i <= 28; i++ {
		r[i] = featureRange{Min: -75, Max: 75}
	}
	r[domain.SlotAmount] = featureRange{Min: -100, Max: 50000}
	return r
}

// Engine wraps the loaded model with lifecycle management, a fingerprint
// prediction cache and running counters. It is safe for concurrent use.
type Engine struct {
	loader Loader
	cache  domain.Cache
	cfg    domain.EngineConfig
	logger *slog.Logger

	mu    sync.RWMutex
	state domain.EngineState
	model domain.ModelFunc
	info  ModelInfo

	// counters, guarded by mu
	totalPredictions int64
	cacheHits        int64
	cacheMisses      int64
	inferenceCount   int64
	inferenceTotal   time.Duration
}

// NewEngine creates an engine in the Unloaded state. cache may be nil, which
// disables caching regardless of per-request options.
func NewEngine(loader Loader, cache domain.Cache, cfg domain.EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		loader: loader,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With("component", "inference"),
		state:  domain.StateUnloaded,
	}
}

// Load runs the loader and transitions Unloaded/Failed -> Loading -> Ready,
// or back to Failed with a ModelLoadError. A failed load leaves the engine
// retryable. Concurrent loads are serialized; a load racing a completed one
// is a no-op.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.state == domain.StateReady {
		e.mu.Unlock()
		return nil
	}
	if e.state == domain.StateLoading {
		e.mu.Unlock()
		return &domain.ModelLoadError{Cause: errors.New("load already in progress")}
	}
	e.state = domain.StateLoading
	e.mu.Unlock()

	model, info, err := e.loader(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = domain.StateFailed
		e.logger.Error("model load failed", "error", err)
		return &domain.ModelLoadError{Cause: err}
	}
	e.model = model
	e.info = info
	e.state = domain.StateReady
	e.logger.Info("model loaded",
		"name", info.Name,
		"version", info.Version,
		"source", info.Source)
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() domain.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Info returns metadata about the loaded model. Zero value until Ready.
func (e *Engine) Info() ModelInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.info
}

// Ping reports whether the engine can serve predictions.
func (e *Engine) Ping(ctx context.Context) error {
	if s := e.State(); s != domain.StateReady {
		return &domain.ModelNotReadyError{State: s}
	}
	return nil
}

// Score implements domain.Scorer by delegating to Predict with the
// configured cache default combined with the per-request option.
func (e *Engine) Score(ctx context.Context, vec *domain.FeatureVector, opts domain.ScoreOptions) (*domain.PredictionResult, error) {
	return e.Predict(ctx, vec, opts)
}

// Predict scores one vector. With caching enabled, a fingerprint hit returns
// the stored decision marked Cached without touching its TTL; a miss runs
// range validation, invokes the model, classifies, and stores the result.
// Two concurrent misses on the same fingerprint both run inference and the
// later store wins, which is harmless: the model is deterministic.
func (e *Engine) Predict(ctx context.Context, vec *domain.FeatureVector, opts domain.ScoreOptions) (*domain.PredictionResult, error) {
	e.mu.RLock()
	state := e.state
	model := e.model
	e.mu.RUnlock()

	if state != domain.StateReady {
		return nil, &domain.ModelNotReadyError{State: state}
	}

	useCache := opts.UseCache && e.cfg.UseCache && e.cache != nil
	var key string
	if useCache {
		key = fingerprintKey(vec)
		if cached := e.cacheLookup(ctx, key); cached != nil {
			return cached, nil
		}
	}

	if err := validateRanges(vec); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := model(ctx, [][]float64{vec[:]})
	elapsed := time.Since(start)
	if err != nil {
		return nil, &domain.InferenceError{Cause: err}
	}
	probs, err := extractProbabilities(rows)
	if err != nil {
		return nil, &domain.InferenceError{Cause: err}
	}

	result := classify(probs, elapsed)

	if useCache {
		e.cacheStore(ctx, key, result)
	}

	e.mu.Lock()
	e.totalPredictions++
	if useCache {
		e.cacheMisses++
	}
	e.inferenceCount++
	e.inferenceTotal += elapsed
	e.mu.Unlock()

	return result, nil
}

// PredictBatch scores inputs independently in order. A failure on one item
// is reported in place and never aborts the rest.
func (e *Engine) PredictBatch(ctx context.Context, vecs []*domain.FeatureVector, opts domain.ScoreOptions) []domain.BatchItem {
	items := make([]domain.BatchItem, len(vecs))
	for i, vec := range vecs {
		items[i].Index = i
		result, err := e.Predict(ctx, vec, opts)
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
	return items
}

// Stats returns a snapshot of the running counters.
func (e *Engine) Stats(ctx context.Context) domain.EngineStats {
	e.mu.RLock()
	stats := domain.EngineStats{
		TotalPredictions: e.totalPredictions,
		CacheHits:        e.cacheHits,
		CacheMisses:      e.cacheMisses,
		CacheCapacity:    e.cfg.CacheCapacity,
	}
	total := e.cacheHits + e.cacheMisses
	if total > 0 {
		stats.CacheHitRate = float64(e.cacheHits) / float64(total)
	}
	// Average over model invocations only; cache hits never ran inference
	// and would dilute the figure.
	if e.inferenceCount > 0 {
		stats.AvgInferenceMs = float64(e.inferenceTotal.Milliseconds()) / float64(e.inferenceCount)
	}
	e.mu.RUnlock()

	if e.cache != nil {
		if n, err := e.cache.Len(ctx); err == nil {
			stats.CacheSize = n
		}
	}
	return stats
}

// ClearCache drops every cached prediction and resets the hit counters.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	if err := e.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear prediction cache: %w", err)
	}
	e.mu.Lock()
	e.cacheHits = 0
	e.cacheMisses = 0
	e.mu.Unlock()
	return nil
}

func (e *Engine) cacheLookup(ctx context.Context, key string) *domain.PredictionResult {
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("prediction cache get failed", "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var result domain.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		e.logger.Warn("prediction cache entry corrupt", "key", key, "error", err)
		return nil
	}
	result.Cached = true

	e.mu.Lock()
	e.totalPredictions++
	e.cacheHits++
	e.mu.Unlock()
	return &result
}

func (e *Engine) cacheStore(ctx context.Context, key string, result *domain.PredictionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cfg.CacheTTL); err != nil {
		e.logger.Warn("prediction cache set failed", "error", err)
	}
}

// fingerprintKey builds a deterministic cache key from the discriminating
// vector slots.
func fingerprintKey(vec *domain.FeatureVector) string {
	key := "pred"
	for _, slot := range fingerprintSlots {
		key += fmt.Sprintf(":%.6f", vec[slot])
	}
	return key
}

func validateRanges(vec *domain.FeatureVector) error {
	var fields []domain.FieldError
	for i, v := range vec {
		r := featureRanges[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			fields = append(fields, domain.FieldError{
				Field:  domain.FeatureNames[i],
				Reason: "must be a finite number",
			})
			continue
		}
		if v < r.Min || v > r.Max {
			fields = append(fields, domain.FieldError{
				Field:  domain.FeatureNames[i],
				Reason: fmt.Sprintf("value %g outside allowed range [%g, %g]", v, r.Min, r.Max),
			})
		}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// extractProbabilities validates the model output shape and returns the
// [P(Normal), P(Fraud)] pair.
func extractProbabilities(rows [][]float64) ([2]float64, error) {
	var probs [2]float64
	if len(rows) != 1 || len(rows[0]) != 2 {
		return probs, fmt.Errorf("model returned %d rows, want 1 row of 2 probabilities", len(rows))
	}
	p0, p1 := rows[0][0], rows[0][1]
	if !isFiniteProb(p0) || !isFiniteProb(p1) {
		return probs, fmt.Errorf("model returned non-probability output [%g, %g]", p0, p1)
	}
	if sum := p0 + p1; math.Abs(sum-1.0) > 1e-6 {
		return probs, fmt.Errorf("model probabilities sum to %g, want 1", sum)
	}
	probs[0], probs[1] = p0, p1
	return probs, nil
}

func isFiniteProb(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0 && p <= 1
}

// classify turns the probability pair into a decision. Fraud wins strictly
// above 0.5 so a perfect tie stays Normal.
func classify(probs [2]float64, elapsed time.Duration) *domain.PredictionResult {
	probNormal, probFraud := probs[0], probs[1]
	label := domain.LabelNormal
	if probFraud > 0.5 {
		label = domain.LabelFraud
	}
	return &domain.PredictionResult{
		ID:                uuid.New().String(),
		Label:             label,
		Confidence:        math.Max(probNormal, probFraud),
		ProbabilityFraud:  probFraud,
		ProbabilityNormal: probNormal,
		RiskLevel:         domain.RiskLevelFromProbability(probFraud),
		Cached:            false,
		InferenceMs:       elapsed.Milliseconds(),
		CreatedAt:         time.Now().UTC(),
	}
}
