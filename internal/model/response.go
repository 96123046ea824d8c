package model

import (
	"time"

	"gorm.io/datatypes"
)

// Response is one genuine inbound event. Created by the reconciliation
// engine on every webhook callback that carries an actual reply; never
// mutated afterwards except to attach the resolved contact.
type Response struct {
	ID             int64          `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID          int64          `json:"org_id" gorm:"column:org_id;index" validate:"required"`
	Method         Channel        `json:"method" gorm:"column:method;default:sms"`
	ContactID      *int64         `json:"contact_id,omitempty" gorm:"column:contact_id"`
	Phone          string         `json:"phone,omitempty" gorm:"column:phone"`
	Body           string         `json:"body,omitempty" gorm:"column:body;type:text"`
	Recording      string         `json:"recording,omitempty" gorm:"column:recording"`
	Transcription  string         `json:"transcription,omitempty" gorm:"column:transcription;type:text"`
	SID            string         `json:"sid,omitempty" gorm:"column:sid;index"`
	DateReceived   time.Time      `json:"date_received,omitempty" gorm:"column:date_received;autoCreateTime"`
	ProviderFields datatypes.JSON `json:"provider_fields,omitempty" gorm:"type:jsonb;column:provider_fields"`
}

// TableName specifies the table name for the Response model.
func (Response) TableName() string {
	return "responses"
}

// ForwardSummary is the one-line relay body sent to the organization's
// forward phone.
func (r *Response) ForwardSummary() string {
	return "msg from " + r.Phone + ": " + r.Body
}

// Autoreply is an organization-scoped rule: when an inbound body equals
// the trigger (case-insensitive), reply with Reply and attach Tags to the
// contact. Tag attachment is additive only.
type Autoreply struct {
	ID      int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID   int64  `json:"org_id" gorm:"column:org_id;index" validate:"required"`
	Trigger string `json:"trigger" gorm:"column:trigger" validate:"required"`
	Reply   string `json:"reply" gorm:"column:reply" validate:"required"`
	Tags    []Tag  `json:"tags,omitempty" gorm:"many2many:autoreply_tags"`
}

// TableName specifies the table name for the Autoreply model.
func (Autoreply) TableName() string {
	return "autoreplies"
}
