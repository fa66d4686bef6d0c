package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// SaveQuote inserts a generated quote. Repeated quotes for the same phone
// and service are allowed; each request gets its own row.
func (r *Repo) SaveQuote(ctx context.Context, quote *model.Quote) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Create(quote)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveQuote Commit", operation)
	observer.ObserveDbOperationDuration("insert", "orcamento", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save quote",
			zap.String("phone", quote.Phone),
			zap.String("servico", quote.ServiceCategory),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// ListQuotes returns the most recent quotes.
func (r *Repo) ListQuotes(ctx context.Context, limit int) ([]model.Quote, error) {
	var quotes []model.Quote
	operation := func() error {
		query := r.db.WithContext(ctx).Order("created_at DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		result := query.Find(&quotes)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListQuotes", operation)
	observer.ObserveDbOperationDuration("select", "orcamento", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return quotes, nil
}

// FindQuoteByID finds a quote by its primary key.
func (r *Repo) FindQuoteByID(ctx context.Context, id int64) (*model.Quote, error) {
	var quote model.Quote
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&quote)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindQuoteByID", operation)
	observer.ObserveDbOperationDuration("select", "orcamento", time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &quote, nil
}

// CountQuotes returns the total number of stored quotes.
func (r *Repo) CountQuotes(ctx context.Context) (int64, error) {
	var count int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Quote{}).Count(&count)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "CountQuotes", operation)
	observer.ObserveDbOperationDuration("count", "orcamento", time.Since(startTime), readErr)

	if readErr != nil {
		return 0, readErr
	}
	return count, nil
}

// UpdateQuoteStatus moves a quote to a new status.
func (r *Repo) UpdateQuoteStatus(ctx context.Context, id int64, status string) error {
	switch status {
	case model.QuoteStatusGenerated, model.QuoteStatusPendingPayment,
		model.QuoteStatusFiled, model.QuoteStatusCompleted:
	default:
		return fmt.Errorf("%w: unknown quote status %q", apperrors.ErrValidation, status)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Quote{}).
			Where("id = ?", id).
			Update("status", status)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: quote %d not found", apperrors.ErrNotFound, id)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateQuoteStatus Commit", operation)
	observer.ObserveDbOperationDuration("update", "orcamento", time.Since(startTime), commitErr)

	return commitErr
}
