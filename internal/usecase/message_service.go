package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/classifier"
	"github.com/wdespachante/wa-service/internal/model"
	"github.com/wdespachante/wa-service/internal/storage"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// MessageService owns the inbound message lifecycle: record, suggest,
// review (approve/correct), ignore and the aggregate statistics.
type MessageService struct {
	messages storage.MessageRepo
	training storage.TrainingRepo
}

// NewMessageService wires the service to its repositories.
func NewMessageService(messages storage.MessageRepo, training storage.TrainingRepo) *MessageService {
	return &MessageService{messages: messages, training: training}
}

// RecordInbound persists a parsed envelope with its classification.
func (s *MessageService) RecordInbound(ctx context.Context, env *model.Envelope, result classifier.Result) (*model.Message, error) {
	message := &model.Message{
		MessageID:        env.MessageID,
		Phone:            env.From,
		Text:             env.Text,
		Category:         result.Category,
		IsClient:         result.IsClient,
		Confidence:       result.Confidence,
		InstanceID:       env.InstanceID,
		RawPayload:       datatypes.JSON(env.Raw),
		MessageTimestamp: env.Timestamp,
	}

	if err := s.messages.SaveMessage(ctx, message); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Inbound message recorded",
		zap.Int64("id", message.ID),
		zap.String("phone", message.Phone),
		zap.String("category", message.Category))
	return message, nil
}

// AttachSuggestion stores the drafted reply and its confidence.
func (s *MessageService) AttachSuggestion(ctx context.Context, message *model.Message, reply string, confidence float64) error {
	message.SuggestedReply = reply
	message.Confidence = confidence
	return s.messages.UpdateMessage(ctx, message)
}

// MarkProcessed flips the processed flag once the pipeline is done with a
// message, whether or not a reply went out. The message stays in the
// review queue until the operator decides on it.
func (s *MessageService) MarkProcessed(ctx context.Context, message *model.Message, replySent bool) error {
	message.Processed = true
	message.ReplySent = replySent
	return s.messages.UpdateMessage(ctx, message)
}

// markReviewed removes a message from the review queue after an operator
// decision.
func (s *MessageService) markReviewed(ctx context.Context, message *model.Message) error {
	message.Reviewed = true
	message.Processed = true
	return s.messages.UpdateMessage(ctx, message)
}

// Approve records the operator accepting the suggested reply as-is. The
// message becomes a training example; a second decision for the same
// message fails with ErrDuplicate from the unique index, never from an
// application-side check.
func (s *MessageService) Approve(ctx context.Context, messageID int64) (*model.TrainingExample, error) {
	message, err := s.messages.FindMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.SuggestedReply == "" {
		return nil, fmt.Errorf("%w: message %d has no suggested reply to approve", apperrors.ErrValidation, messageID)
	}

	example := &model.TrainingExample{
		MessageID:       message.ID,
		CustomerMessage: message.Text,
		AISuggestion:    message.SuggestedReply,
		Decision:        model.DecisionApproved,
		ServiceCategory: message.Category,
	}
	if err := s.training.SaveTrainingExample(ctx, example); err != nil {
		return nil, err
	}

	if err := s.markReviewed(ctx, message); err != nil {
		logger.FromContext(ctx).Warn("Approved but failed to mark message reviewed",
			zap.Int64("id", messageID), zap.Error(err))
	}

	logger.FromContext(ctx).Info("Suggestion approved",
		zap.Int64("message_id", messageID),
		zap.String("category", message.Category))
	return example, nil
}

// Correct records the operator overriding the suggestion with their own
// reply. An empty correction is a validation error, not a silent approve.
func (s *MessageService) Correct(ctx context.Context, messageID int64, correctedReply string) (*model.TrainingExample, error) {
	correctedReply = strings.TrimSpace(correctedReply)
	if correctedReply == "" {
		return nil, fmt.Errorf("%w: corrected reply must not be empty", apperrors.ErrValidation)
	}

	message, err := s.messages.FindMessageByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	example := &model.TrainingExample{
		MessageID:         message.ID,
		CustomerMessage:   message.Text,
		AISuggestion:      message.SuggestedReply,
		CorrectedResponse: correctedReply,
		Decision:          model.DecisionCorrected,
		ServiceCategory:   message.Category,
	}
	if err := s.training.SaveTrainingExample(ctx, example); err != nil {
		return nil, err
	}

	if err := s.markReviewed(ctx, message); err != nil {
		logger.FromContext(ctx).Warn("Corrected but failed to mark message reviewed",
			zap.Int64("id", messageID), zap.Error(err))
	}

	logger.FromContext(ctx).Info("Suggestion corrected",
		zap.Int64("message_id", messageID),
		zap.String("category", message.Category))
	return example, nil
}

// Ignore soft-deletes a message from the review queue.
func (s *MessageService) Ignore(ctx context.Context, messageID int64) error {
	return s.messages.MarkIgnored(ctx, messageID)
}

// ListPending returns messages still awaiting an operator decision.
func (s *MessageService) ListPending(ctx context.Context, limit int) ([]model.Message, error) {
	return s.messages.ListMessages(ctx, storage.MessageFilter{OnlyPending: true, Limit: limit})
}

// ListMessages returns messages matching the filter.
func (s *MessageService) ListMessages(ctx context.Context, filter storage.MessageFilter) ([]model.Message, error) {
	return s.messages.ListMessages(ctx, filter)
}

// ListTrained returns recent training examples.
func (s *MessageService) ListTrained(ctx context.Context, limit int) ([]model.TrainingExample, error) {
	return s.training.ListTrainingExamples(ctx, limit)
}

// Stats aggregates the dashboard counters. The approval rate is the share
// of approved decisions over all decisions, rounded to whole percent.
func (s *MessageService) Stats(ctx context.Context) (*storage.TrainingStats, error) {
	stats := &storage.TrainingStats{}
	var err error

	if stats.TotalMessages, err = s.messages.CountMessages(ctx, false); err != nil {
		return nil, err
	}
	if stats.PendingMessages, err = s.messages.CountMessages(ctx, true); err != nil {
		return nil, err
	}
	if stats.TrainedTotal, err = s.training.CountTrainingExamples(ctx); err != nil {
		return nil, err
	}
	if stats.ApprovedCount, err = s.training.CountTrainingExamplesByDecision(ctx, model.DecisionApproved); err != nil {
		return nil, err
	}
	if stats.CorrectedCount, err = s.training.CountTrainingExamplesByDecision(ctx, model.DecisionCorrected); err != nil {
		return nil, err
	}
	if stats.TrainedToday, err = s.training.CountTrainingExamplesSince(ctx, utils.StartOfDay(utils.Now())); err != nil {
		return nil, err
	}
	if stats.ByCategory, err = s.messages.CountMessagesByCategory(ctx); err != nil {
		return nil, err
	}

	if stats.TrainedTotal > 0 {
		stats.ApprovalRate = math.Round(100 * float64(stats.ApprovedCount) / float64(stats.TrainedTotal))
	}

	return stats, nil
}
