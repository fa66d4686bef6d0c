package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// SaveMessage stores an inbound message in the database.
func (r *Repo) SaveMessage(ctx context.Context, message *model.Message) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessage Commit", operation)
	observer.ObserveDbOperationDuration("insert", "mensagem", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save message after retries",
			zap.String("phone", message.Phone), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// UpdateMessage persists changed fields of an existing message row.
func (r *Repo) UpdateMessage(ctx context.Context, message *model.Message) error {
	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Where("id = ?", message.ID).
			Updates(map[string]interface{}{
				"category":        message.Category,
				"confidence":      message.Confidence,
				"suggested_reply": message.SuggestedReply,
				"reply_sent":      message.ReplySent,
				"processed":       message.Processed,
				"reviewed":        message.Reviewed,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			logger.FromContext(ctx).Warn("UpdateMessage resulted in 0 rows affected",
				zap.Int64("id", message.ID))
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateMessage Commit", operation)
	observer.ObserveDbOperationDuration("update", "mensagem", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update message after retries",
			zap.Int64("id", message.ID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindMessageByID finds a message by its primary key.
func (r *Repo) FindMessageByID(ctx context.Context, id int64) (*model.Message, error) {
	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindMessageByID", operation)
	observer.ObserveDbOperationDuration("select", "mensagem", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &message, nil
}

// ListMessages returns messages matching the filter, newest first.
// Ignored rows are always excluded.
func (r *Repo) ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error) {
	var messages []model.Message
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("is_ignored = ?", false).
			Order("created_at DESC")
		if filter.Phone != "" {
			query = query.Where("phone = ?", filter.Phone)
		}
		if filter.Category != "" {
			query = query.Where("category = ?", filter.Category)
		}
		if filter.OnlyPending {
			query = query.Where("reviewed = ?", false)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
		result := query.Find(&messages)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListMessages", operation)
	observer.ObserveDbOperationDuration("select", "mensagem", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return messages, nil
}

// MarkIgnored soft-deletes a message. The row stays for audit but drops
// out of every listing and the pending queue.
func (r *Repo) MarkIgnored(ctx context.Context, id int64) error {
	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"is_ignored": true,
				"processed":  true,
				"reviewed":   true,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkIgnored Commit", operation)
	observer.ObserveDbOperationDuration("update", "mensagem", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark message ignored",
			zap.Int64("id", id), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// CountMessages counts stored messages, optionally only ones still
// awaiting operator review.
// Ignored rows are excluded either way.
func (r *Repo) CountMessages(ctx context.Context, onlyPending bool) (int64, error) {
	var count int64
	operation := func() error {
		query := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Where("is_ignored = ?", false)
		if onlyPending {
			query = query.Where("reviewed = ?", false)
		}
		result := query.Count(&count)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "CountMessages", operation)
	observer.ObserveDbOperationDuration("select", "mensagem", time.Since(startTime), readErr)

	if readErr != nil {
		return 0, readErr
	}
	return count, nil
}

// CountMessagesByCategory aggregates non-ignored message counts per
// classifier category.
func (r *Repo) CountMessagesByCategory(ctx context.Context) (map[string]int64, error) {
	type categoryCount struct {
		Category string
		Total    int64
	}
	var rows []categoryCount
	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Select("category, COUNT(*) AS total").
			Where("is_ignored = ?", false).
			Group("category").
			Scan(&rows)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "CountMessagesByCategory", operation)
	observer.ObserveDbOperationDuration("select", "mensagem", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Category] = row.Total
	}
	return counts, nil
}
