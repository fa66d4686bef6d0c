package model

import (
	"time"

	"gorm.io/datatypes"
)

// Service categories assigned by the classifier. The order they are
// evaluated in lives in the classifier package; these are just the tags
// that end up in storage.
const (
	CategoryTransferencia = "transferencia"
	CategoryIPVA          = "ipva"
	CategoryLicenciamento = "licenciamento"
	CategoryMultas        = "multas"
	CategoryCRLV          = "crlv"
	CategoryGravame       = "gravame"
	CategoryVistoria      = "vistoria"
	CategoryDocumentacao  = "documentacao"
	CategoryConsulta      = "consulta"
	CategoryCumprimento   = "cumprimento"
	CategoryConfirmacao   = "confirmacao"
	CategoryGrupo         = "grupo"
	CategoryAnuncio       = "anuncio"
	CategoryCanal         = "canal"
	CategoryOutros        = "outros"
)

// Message is an inbound WhatsApp message as stored in the mensagens table.
// Rows are append-only; SuggestedReply is filled once by the background
// pipeline; Reviewed flips when the operator approves, corrects or
// ignores the message, and IsIgnored on the delete action specifically.
type Message struct {
	ID               int64          `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageID        string         `json:"message_id,omitempty" gorm:"column:message_id;index"`
	Phone            string         `json:"phone" gorm:"column:phone;index"`
	Text             string         `json:"text" gorm:"column:text"`
	Category         string         `json:"category" gorm:"column:category;index"`
	IsClient         bool           `json:"is_client" gorm:"column:is_client"`
	Confidence       float64        `json:"confidence,omitempty" gorm:"column:confidence"`
	SuggestedReply   string         `json:"suggested_reply,omitempty" gorm:"column:suggested_reply"`
	ReplySent        bool           `json:"reply_sent,omitempty" gorm:"column:reply_sent;default:false"`
	Processed        bool           `json:"processed,omitempty" gorm:"column:processed;default:false"`
	Reviewed         bool           `json:"reviewed,omitempty" gorm:"column:reviewed;default:false;index"`
	IsIgnored        bool           `json:"is_ignored,omitempty" gorm:"column:is_ignored;default:false"`
	InstanceID       string         `json:"instance_id,omitempty" gorm:"column:instance_id"`
	RawPayload       datatypes.JSON `json:"raw_payload,omitempty" gorm:"column:raw_payload"`
	MessageTimestamp int64          `json:"message_timestamp,omitempty" gorm:"column:message_timestamp"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the original Portuguese table name.
func (Message) TableName() string {
	return "mensagens"
}
