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

// SaveDocument records an ingested media document. The row is written even
// for partially-failed ingestions so the audit trail stays complete.
func (r *Repo) SaveDocument(ctx context.Context, doc *model.Document) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(doc)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveDocument Commit", operation)
	observer.ObserveDbOperationDuration("insert", "documento", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save document",
			zap.String("phone", doc.Phone),
			zap.String("tipo", doc.DocType),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// ListDocuments returns the most recent documents, optionally filtered by
// phone.
func (r *Repo) ListDocuments(ctx context.Context, phone string, limit int) ([]model.Document, error) {
	var docs []model.Document
	operation := func() error {
		query := r.db.WithContext(ctx).Order("created_at DESC")
		if phone != "" {
			query = query.Where("phone = ?", phone)
		}
		if limit > 0 {
			query = query.Limit(limit)
		}
		result := query.Find(&docs)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListDocuments", operation)
	observer.ObserveDbOperationDuration("select", "documento", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return docs, nil
}

// CountDocuments returns the total number of ingested documents.
func (r *Repo) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Document{}).Count(&count)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "CountDocuments", operation)
	observer.ObserveDbOperationDuration("count", "documento", time.Since(startTime), readErr)

	if readErr != nil {
		return 0, readErr
	}
	return count, nil
}
