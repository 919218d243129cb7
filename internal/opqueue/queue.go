package opqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/localid"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/metrics"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/store"
)

// Queue guarantees that a locally-accepted write (sale, payment, cash
// movement) is not silently lost when the remote system is unreachable:
// the operation is persisted and replayed with bounded retries once
// connectivity returns.
type Queue struct {
	store      *store.Store
	client     *remote.Client
	sealer     *Sealer
	tenantID   string
	maxRetries int
	log        *zap.Logger
	metrics    *metrics.Metrics
}

type Options struct {
	TenantID   string
	MaxRetries int
	SealKey    []byte
}

func New(st *store.Store, client *remote.Client, opts Options, log *zap.Logger, m *metrics.Metrics) (*Queue, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	var sealer *Sealer
	if len(opts.SealKey) > 0 {
		var err error
		sealer, err = NewSealer(opts.SealKey)
		if err != nil {
			return nil, err
		}
	}

	return &Queue{
		store:      st,
		client:     client,
		sealer:     sealer,
		tenantID:   opts.TenantID,
		maxRetries: opts.MaxRetries,
		log:        log,
		metrics:    m,
	}, nil
}

// Outcome reports how a submission ended: delivered right away, or queued
// for replay.
type Outcome struct {
	Delivered   bool
	Queued      bool
	OperationID string
	Response    []byte
}

// Submit tries the remote once and, when the system is unreachable or
// answering with server errors, persists the operation for later replay.
// Client errors (4xx) are returned to the caller and never queued; retrying
// an invalid payload cannot succeed.
func (q *Queue) Submit(ctx context.Context, opType string, method string, endpoint string, payload any, localRef string) (*Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", opType, err)
	}

	response, err := q.client.Do(ctx, method, endpoint, body)
	if err == nil {
		return &Outcome{Delivered: true, Response: response}, nil
	}
	if !remote.IsRetryable(err) {
		return nil, err
	}

	stored := body
	sealed := false
	if q.sealer != nil {
		stored, err = q.sealer.Seal(body)
		if err != nil {
			return nil, fmt.Errorf("seal payload: %w", err)
		}
		sealed = true
	}

	op := domain.OfflineOperation{
		ID:         localid.New("op"),
		TenantID:   q.tenantID,
		Type:       opType,
		Endpoint:   endpoint,
		Method:     method,
		Payload:    stored,
		Sealed:     sealed,
		Status:     domain.OpStatusPending,
		MaxRetries: q.maxRetries,
	}
	if localRef != "" {
		op.LocalRef = localRef
	}
	if err := q.store.Enqueue(ctx, op); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", opType, err)
	}

	q.log.Info("operation queued for replay",
		zap.String("id", op.ID),
		zap.String("type", opType),
		zap.String("endpoint", endpoint))
	q.updateDepth(ctx)
	return &Outcome{Queued: true, OperationID: op.ID}, nil
}

// Recover returns crashed in-flight operations to pending. Must run once
// before the replay worker starts.
func (q *Queue) Recover(ctx context.Context) (int64, error) {
	n, err := q.store.ResetProcessingOperations(ctx, q.tenantID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.log.Warn("recovered operations stuck in processing", zap.Int64("count", n))
	}
	q.updateDepth(ctx)
	return n, nil
}

// ReplayPending drains the queue once: each eligible operation gets one
// attempt this pass. Further attempts for operations that fail again wait
// for the next pass, so a dead remote does not burn all retries in one
// tight loop. Returns the number of completed and failed attempts.
func (q *Queue) ReplayPending(ctx context.Context) (completed int, failed int, err error) {
	// Ids already tried this pass are excluded from the claim query, so a
	// head-of-queue operation that fails retryably cannot shadow the newer
	// operations behind it.
	attempted := make([]string, 0, 8)

	for {
		op, claimErr := q.store.ClaimNextOperation(ctx, q.tenantID, attempted)
		if errors.Is(claimErr, store.ErrNotFound) {
			break
		}
		if claimErr != nil {
			err = claimErr
			break
		}
		attempted = append(attempted, op.ID)

		if q.replayOne(ctx, op) {
			completed++
		} else {
			failed++
		}
	}

	q.updateDepth(ctx)
	return completed, failed, err
}

func (q *Queue) replayOne(ctx context.Context, op *domain.OfflineOperation) bool {
	payload := op.Payload
	if op.Sealed {
		if q.sealer == nil {
			q.fail(ctx, op, "sealed payload but no seal key configured", true)
			return false
		}
		var err error
		payload, err = q.sealer.Open(op.Payload)
		if err != nil {
			q.fail(ctx, op, err.Error(), true)
			return false
		}
	}

	response, err := q.client.Do(ctx, op.Method, op.Endpoint, payload)
	if err != nil {
		// Non-retryable remote answers exhaust the operation immediately;
		// it stays visible as failed for manual intervention.
		q.fail(ctx, op, err.Error(), !remote.IsRetryable(err))
		return false
	}

	if err := q.store.CompleteOperation(ctx, op.ID, response); err != nil {
		// Delivered but not recorded: release so the next pass retries
		// rather than leaving it parked in processing until restart. The
		// remote deduplicates the resubmission by its local reference.
		q.log.Error("mark completed failed", zap.String("id", op.ID), zap.Error(err))
		if relErr := q.store.ReleaseOperation(ctx, op.ID); relErr != nil {
			q.log.Error("release delivered operation failed", zap.String("id", op.ID), zap.Error(relErr))
		}
		return false
	}
	q.metrics.QueueReplays.WithLabelValues("completed").Inc()
	q.log.Info("queued operation replayed",
		zap.String("id", op.ID),
		zap.String("type", op.Type))
	return true
}

func (q *Queue) fail(ctx context.Context, op *domain.OfflineOperation, reason string, exhaust bool) {
	outcome := "failed"
	if exhaust || op.RetryCount+1 >= op.MaxRetries {
		outcome = "exhausted"
	}
	q.metrics.QueueReplays.WithLabelValues(outcome).Inc()
	q.log.Warn("queued operation replay failed",
		zap.String("id", op.ID),
		zap.String("type", op.Type),
		zap.Int("retry_count", op.RetryCount+1),
		zap.Bool("exhausted", outcome == "exhausted"),
		zap.String("reason", reason))
	if err := q.store.FailOperation(ctx, op.ID, reason, exhaust); err != nil {
		q.log.Error("mark failed failed", zap.String("id", op.ID), zap.Error(err))
	}
}

// Depth returns the number of operations still eligible for replay.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.store.QueueDepth(ctx, q.tenantID)
}

// Operations lists queued operations for inspection.
func (q *Queue) Operations(ctx context.Context, status string, limit int) ([]domain.OfflineOperation, error) {
	return q.store.ListOperations(ctx, q.tenantID, status, limit)
}

func (q *Queue) updateDepth(ctx context.Context) {
	if depth, err := q.store.QueueDepth(ctx, q.tenantID); err == nil {
		q.metrics.QueueDepth.Set(float64(depth))
	}
}
