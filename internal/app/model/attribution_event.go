package model

import "time"

// AttributionEvent is the audit record published after each lead pass. The
// orchestrator publishes it to JetStream; a durable consumer persists it so
// attribution outcomes can be replayed and aggregated.
type AttributionEvent struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:36"`
	LeadID             int       `json:"lead_id" gorm:"index"`
	Source             Source    `json:"source" gorm:"size:16;not null"`
	ClickIDKind        string    `json:"click_id_kind,omitempty" gorm:"size:16"`
	ClickID            string    `json:"click_id,omitempty" gorm:"size:255"`
	ConversionUploaded bool      `json:"conversion_uploaded" gorm:"not null;default:false"`
	Timestamp          time.Time `json:"timestamp" gorm:"index"`
}

func (AttributionEvent) TableName() string {
	return "attribution_events"
}

const (
	AttributionStreamName     = "ATTRIBUTIONS"
	AttributionStreamSubject  = "attributions.events"
	AttributionConsumerName   = "attribution-logger"
	AttributionStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
