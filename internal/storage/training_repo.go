package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// SaveTrainingExample inserts an operator decision. The unique index on
// message_id rejects a second decision for the same message; callers see
// that as apperrors.ErrDuplicate. Duplicates are never retried.
func (r *Repo) SaveTrainingExample(ctx context.Context, example *model.TrainingExample) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(example)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveTrainingExample Commit", operation)
	observer.ObserveDbOperationDuration("insert", "treinada", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Warn("Failed to save training example",
			zap.Int64("message_id", example.MessageID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// ListTrainingExamples returns the most recent examples.
func (r *Repo) ListTrainingExamples(ctx context.Context, limit int) ([]model.TrainingExample, error) {
	var examples []model.TrainingExample
	operation := func() error {
		query := r.db.WithContext(ctx).Order("created_at DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		result := query.Find(&examples)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListTrainingExamples", operation)
	observer.ObserveDbOperationDuration("select", "treinada", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return examples, nil
}

// ListTrainingExamplesByCategory returns recent examples for one service
// category, used as few-shot prompt material.
func (r *Repo) ListTrainingExamplesByCategory(ctx context.Context, category string, limit int) ([]model.TrainingExample, error) {
	var examples []model.TrainingExample
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("service_category = ?", category).
			Order("created_at DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		result := query.Find(&examples)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListTrainingExamplesByCategory", operation)
	observer.ObserveDbOperationDuration("select", "treinada", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return examples, nil
}

// CountTrainingExamples counts all stored examples.
func (r *Repo) CountTrainingExamples(ctx context.Context) (int64, error) {
	return r.countTraining(ctx, "CountTrainingExamples", func(query *gorm.DB) *gorm.DB {
		return query
	})
}

// CountTrainingExamplesByDecision counts examples with the given decision.
func (r *Repo) CountTrainingExamplesByDecision(ctx context.Context, decision string) (int64, error) {
	return r.countTraining(ctx, "CountTrainingExamplesByDecision", func(query *gorm.DB) *gorm.DB {
		return query.Where("decision = ?", decision)
	})
}

// CountTrainingExamplesSince counts examples created at or after the cutoff.
func (r *Repo) CountTrainingExamplesSince(ctx context.Context, since time.Time) (int64, error) {
	return r.countTraining(ctx, "CountTrainingExamplesSince", func(query *gorm.DB) *gorm.DB {
		return query.Where("created_at >= ?", since)
	})
}

func (r *Repo) countTraining(ctx context.Context, opName string, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	var count int64
	operation := func() error {
		query := scope(r.db.WithContext(ctx).Model(&model.TrainingExample{}))
		if result := query.Count(&count); result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, opName, operation)
	observer.ObserveDbOperationDuration("select", "treinada", time.Since(startTime), readErr)

	if readErr != nil {
		return 0, readErr
	}
	return count, nil
}
