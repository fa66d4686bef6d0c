package model

import "time"

// Quote statuses. Transitions are operator-driven; nothing here enforces
// the order.
const (
	QuoteStatusGenerated      = "gerado"
	QuoteStatusPendingPayment = "aguardando_pagamento"
	QuoteStatusFiled          = "protocolado"
	QuoteStatusCompleted      = "concluido"
)

// Quote is a price breakdown for a requested vehicle-registration service,
// stored in orcamentos. A new row is inserted per request; there is no
// dedup for repeated quotes on the same phone+service.
//
// Monetary fields are float64 for parity with the table the business runs
// on today; display formatting keeps two decimals.
type Quote struct {
	ID                 int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Phone              string    `json:"phone" gorm:"column:phone;index"`
	ClientName         string    `json:"cliente" gorm:"column:cliente"`
	VehicleDescription string    `json:"veiculo" gorm:"column:veiculo"`
	Plate              string    `json:"placa" gorm:"column:placa"`
	ServiceCategory    string    `json:"servico" gorm:"column:servico"`
	ServiceFee         float64   `json:"honorario" gorm:"column:honorario"`
	GovernmentFee      float64   `json:"taxa_detran" gorm:"column:taxa_detran"`
	Total              float64   `json:"total" gorm:"column:total"`
	TurnaroundDays     string    `json:"prazo" gorm:"column:prazo"`
	Status             string    `json:"status" gorm:"column:status"`
	CreatedAt          time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the original Portuguese table name.
func (Quote) TableName() string {
	return "orcamentos"
}
