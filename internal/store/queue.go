package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
)

// Enqueue persists a pending offline operation.
func (s *Store) Enqueue(ctx context.Context, op domain.OfflineOperation) error {
	return s.db.WithContext(ctx).Create(&op).Error
}

// ClaimNextOperation moves the oldest retryable operation to processing and
// returns it. Operations whose id is in exclude are skipped, so a replay
// pass that already tried the head of the queue still reaches the newer
// entries behind it. The transition happens inside a transaction, which is
// the commit point of the single-worker contract: only one worker can hold
// an operation in processing. Returns ErrNotFound when nothing is claimable.
func (s *Store) ClaimNextOperation(ctx context.Context, tenantID string, exclude []string) (*domain.OfflineOperation, error) {
	var op domain.OfflineOperation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("tenant_id = ? AND status IN (?, ?) AND retry_count < max_retries",
				tenantID, domain.OpStatusPending, domain.OpStatusFailed)
		if len(exclude) > 0 {
			q = q.Where("id NOT IN ?", exclude)
		}
		err := q.Order("created_at").First(&op).Error
		if err != nil {
			return notFound(err)
		}
		op.Status = domain.OpStatusProcessing
		return tx.Model(&domain.OfflineOperation{}).
			Where("id = ?", op.ID).
			Update("status", domain.OpStatusProcessing).Error
	})
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CompleteOperation records a successful replay, storing the remote
// response. Completed operations are terminal.
func (s *Store) CompleteOperation(ctx context.Context, id string, response []byte) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&domain.OfflineOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          domain.OpStatusCompleted,
			"response":        response,
			"last_error":      "",
			"last_attempt_at": now,
		}).Error
}

// FailOperation records a failed attempt. exhaust pins retry_count to
// max_retries so a non-retryable failure becomes terminal immediately.
func (s *Store) FailOperation(ctx context.Context, id string, lastError string, exhaust bool) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":          domain.OpStatusFailed,
		"retry_count":     gorm.Expr("retry_count + 1"),
		"last_error":      lastError,
		"last_attempt_at": now,
	}
	if exhaust {
		updates["retry_count"] = gorm.Expr("max_retries")
	}
	return s.db.WithContext(ctx).Model(&domain.OfflineOperation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ReleaseOperation hands a claimed operation back without counting an
// attempt. The prior status is restored from the attempt counter: an
// operation that has failed before goes back to failed, a fresh one to
// pending.
func (s *Store) ReleaseOperation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&domain.OfflineOperation{}).
		Where("id = ? AND status = ?", id, domain.OpStatusProcessing).
		Update("status", gorm.Expr("CASE WHEN retry_count > 0 THEN ? ELSE ? END",
			domain.OpStatusFailed, domain.OpStatusPending)).Error
}

// ResetProcessingOperations returns crashed in-flight operations to
// pending. A crash while processing must be treated as retryable, never as
// completed. Called once at startup before the replay worker runs.
func (s *Store) ResetProcessingOperations(ctx context.Context, tenantID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&domain.OfflineOperation{}).
		Where("tenant_id = ? AND status = ?", tenantID, domain.OpStatusProcessing).
		Update("status", domain.OpStatusPending)
	return res.RowsAffected, res.Error
}

// QueueDepth counts operations still eligible for replay.
func (s *Store) QueueDepth(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.OfflineOperation{}).
		Where("tenant_id = ? AND status IN (?, ?) AND retry_count < max_retries",
			tenantID, domain.OpStatusPending, domain.OpStatusFailed).
		Count(&count).Error
	return count, err
}

// GetOperation returns one queued operation by id.
func (s *Store) GetOperation(ctx context.Context, id string) (*domain.OfflineOperation, error) {
	var op domain.OfflineOperation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&op).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

// ListOperations returns queued operations for inspection, optionally
// filtered by status. Exhausted failed operations stay visible here for
// manual intervention; they are never silently discarded.
func (s *Store) ListOperations(ctx context.Context, tenantID string, status string, limit int) ([]domain.OfflineOperation, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at desc").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var ops []domain.OfflineOperation
	err := q.Find(&ops).Error
	return ops, err
}
