package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/payflow/payment-core/internal/interfaces"
	"github.com/payflow/payment-core/internal/metrics"
	"github.com/payflow/payment-core/internal/models"
	"github.com/payflow/payment-core/internal/workflow"
)

// Boundary validation errors returned by StartPayment before a run exists.
var (
	ErrMissingFromAccount = errors.New("from_account is required")
	ErrMissingToAccount   = errors.New("to_account is required")
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrRunNotFound        = errors.New("run not found")
)

const (
	runLockTTL     = 10 * time.Minute
	resultCacheTTL = 24 * time.Hour
)

// StartReceipt acknowledges an accepted run before it produces a result.
type StartReceipt struct {
	RunID    string         `json:"run_id"`
	Variant  models.Variant `json:"variant"`
	Accepted bool           `json:"accepted"`
}

// Orchestrator accepts payment requests, routes them to a variant and runs
// the state machine asynchronously. Results are held in an in-memory
// registry, cached in redis and persisted through the run repository, in
// that lookup order.
type Orchestrator struct {
	engine      *workflow.Engine
	repo        interfaces.RunRepository
	redisClient *redis.Client
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu   sync.RWMutex
	runs map[string]*runEntry
}

type runEntry struct {
	done   bool
	result models.PaymentResult
}

func NewOrchestrator(
	engine *workflow.Engine,
	repo interfaces.RunRepository,
	redisClient *redis.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		engine:      engine,
		repo:        repo,
		redisClient: redisClient,
		metrics:     m,
		logger:      logger,
		runs:        make(map[string]*runEntry),
	}
}

// StartPayment validates the request at the boundary, assigns a run id and
// schedules the run. It returns before the first step executes.
func (o *Orchestrator) StartPayment(ctx context.Context, req models.PaymentRequest) (StartReceipt, error) {
	if req.FromAccount == "" {
		return StartReceipt{}, ErrMissingFromAccount
	}
	if req.ToAccount == "" {
		return StartReceipt{}, ErrMissingToAccount
	}
	if req.Amount <= 0 {
		return StartReceipt{}, ErrNonPositiveAmount
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	variant := models.SelectVariant(req.Amount)
	runID := models.NewRunID(variant)

	o.mu.Lock()
	o.runs[runID] = &runEntry{}
	o.mu.Unlock()

	if err := o.repo.InsertRun(ctx, runID, variant); err != nil {
		// The trace store is not allowed to block payments.
		o.logger.Warn("run insert failed", zap.String("run_id", runID), zap.Error(err))
	}

	o.metrics.RunsStarted.WithLabelValues(string(variant)).Inc()
	o.logger.Info("payment run accepted",
		zap.String("run_id", runID),
		zap.String("variant", string(variant)),
		zap.Float64("amount", req.Amount),
	)

	go o.process(runID, variant, req)

	return StartReceipt{RunID: runID, Variant: variant, Accepted: true}, nil
}

func (o *Orchestrator) process(runID string, variant models.Variant, req models.PaymentRequest) {
	// Detached from the caller's request context: the run outlives the
	// StartPayment HTTP exchange.
	ctx := context.Background()

	if o.redisClient != nil {
		lockKey := fmt.Sprintf("run_lock:%s", runID)
		locked := o.redisClient.SetNX(ctx, lockKey, "1", runLockTTL)
		if err := locked.Err(); err != nil {
			// The dedupe lock is best-effort, like the trace store: a redis
			// outage degrades deduplication, it must not swallow the run.
			o.logger.Warn("run lock unavailable", zap.String("run_id", runID), zap.Error(err))
		} else if !locked.Val() {
			o.logger.Warn("run already in progress", zap.String("run_id", runID))
			return
		} else {
			defer o.redisClient.Del(ctx, lockKey)
		}
	}

	result := o.engine.Run(ctx, runID, variant, req)

	o.mu.Lock()
	o.runs[runID] = &runEntry{done: true, result: result}
	o.mu.Unlock()

	outcome := "success"
	if !result.Success {
		outcome = string(result.ErrorKind)
	}
	o.metrics.RunsCompleted.WithLabelValues(string(variant), outcome).Inc()
	o.metrics.RunDuration.WithLabelValues(string(variant)).
		Observe(float64(result.Summary.DurationMs) / 1000)

	persisted := true
	if err := o.repo.FinalizeRun(ctx, result); err != nil {
		o.logger.Warn("run finalize failed", zap.String("run_id", runID), zap.Error(err))
		persisted = false
	}
	if o.cacheResult(ctx, runID, result) {
		persisted = true
	}

	// The registry only carries in-flight runs and results that have nowhere
	// else to live; once a terminal result is durable the cache/repo
	// fallback in GetResult serves it.
	if persisted {
		o.mu.Lock()
		delete(o.runs, runID)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) cacheResult(ctx context.Context, runID string, result models.PaymentResult) bool {
	if o.redisClient == nil {
		return false
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.Warn("result marshal failed", zap.String("run_id", runID), zap.Error(err))
		return false
	}
	key := fmt.Sprintf("run_result:%s", runID)
	if err := o.redisClient.Set(ctx, key, payload, resultCacheTTL).Err(); err != nil {
		o.logger.Warn("result cache write failed", zap.String("run_id", runID), zap.Error(err))
		return false
	}
	return true
}

// GetResult returns the terminal result of a run, or running=true while the
// state machine is still advancing. Lookups fall back from the in-memory
// registry to the redis cache to the run store, so results survive a
// process restart.
func (o *Orchestrator) GetResult(ctx context.Context, runID string) (*models.PaymentResult, bool, error) {
	o.mu.RLock()
	entry, ok := o.runs[runID]
	o.mu.RUnlock()
	if ok {
		if !entry.done {
			return nil, true, nil
		}
		result := entry.result
		return &result, false, nil
	}

	if o.redisClient != nil {
		key := fmt.Sprintf("run_result:%s", runID)
		payload, err := o.redisClient.Get(ctx, key).Bytes()
		if err == nil {
			var result models.PaymentResult
			if err := json.Unmarshal(payload, &result); err == nil {
				return &result, false, nil
			}
			o.logger.Warn("cached result unreadable", zap.String("run_id", runID))
		} else if err != redis.Nil {
			o.logger.Warn("result cache read failed", zap.String("run_id", runID), zap.Error(err))
		}
	}

	rec, err := o.repo.GetRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrRunNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if !rec.Terminal() {
		return nil, true, nil
	}
	result := rec.Result()
	return &result, false, nil
}
