package model

import "time"

// Training decisions: the operator either approved the suggestion verbatim
// or overrode it with their own wording.
const (
	DecisionApproved  = "approved"
	DecisionCorrected = "corrected"
)

// TrainingExample is an operator-reviewed (message, suggestion, final reply)
// triple, stored in mensagens_treinadas and later spliced into LLM prompts
// as few-shot examples. The unique index on message_id is what makes
// duplicate approve/correct attempts fail atomically; there is deliberately
// no application-side existence check.
type TrainingExample struct {
	ID                int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageID         int64     `json:"message_id" gorm:"column:message_id;uniqueIndex:idx_treinadas_message_id"`
	CustomerMessage   string    `json:"customer_message" gorm:"column:customer_message"`
	AISuggestion      string    `json:"ai_suggestion" gorm:"column:ai_suggestion"`
	CorrectedResponse string    `json:"corrected_response,omitempty" gorm:"column:corrected_response"`
	Decision          string    `json:"decision" gorm:"column:decision"`
	ServiceCategory   string    `json:"service_category" gorm:"column:service_category;index"`
	CreatedAt         time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the original Portuguese table name.
func (TrainingExample) TableName() string {
	return "mensagens_treinadas"
}

// FinalReply returns the text an operator actually wants sent: the
// correction when present, otherwise the approved suggestion.
func (t TrainingExample) FinalReply() string {
	if t.Decision == DecisionCorrected && t.CorrectedResponse != "" {
		return t.CorrectedResponse
	}
	return t.AISuggestion
}
