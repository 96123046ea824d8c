package model

import (
	"time"
)

// MessageLog outcome statuses.
const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)

// Message is one outbound campaign. A nil DateSent means draft; dispatch
// sets it exactly once before fan-out and it is never rolled back on
// partial failure.
type Message struct {
	ID                 int64      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID              int64      `json:"org_id" gorm:"column:org_id;index" validate:"required"`
	Body               string     `json:"body" gorm:"column:body" validate:"required"`
	Method             Channel    `json:"method" gorm:"column:method;default:sms" validate:"required,oneof=sms voice email whatsapp conference mixed"`
	AttachmentURL      string     `json:"attachment_url,omitempty" gorm:"column:attachment_url"`
	RecordingURL       string     `json:"recording_url,omitempty" gorm:"column:recording_url"`
	Tags               []Tag      `json:"tags,omitempty" gorm:"many2many:message_tags"`
	Contacts           []Contact  `json:"contacts,omitempty" gorm:"many2many:message_contacts"`
	RequestForResponse bool       `json:"request_for_response,omitempty" gorm:"column:request_for_response;default:false"`
	CreatedByID        *int64     `json:"created_by_id,omitempty" gorm:"column:created_by_id"`
	DateCreated        time.Time  `json:"date_created,omitempty" gorm:"column:date_created;autoCreateTime"`
	DateSent           *time.Time `json:"date_sent,omitempty" gorm:"column:date_sent;index"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// IsSent reports whether dispatch has been attempted for this message.
func (m *Message) IsSent() bool {
	return m.DateSent != nil
}

// MessageLog is one per-recipient send attempt. A resend creates a new
// row; only the provider delivery status fields mutate afterwards, keyed
// by (sid, phone).
type MessageLog struct {
	ID             int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID          int64     `json:"org_id" gorm:"column:org_id;index" validate:"required"`
	MessageID      int64     `json:"message_id" gorm:"column:message_id;index" validate:"required"`
	ContactID      *int64    `json:"contact_id,omitempty" gorm:"column:contact_id"`
	Phone          string    `json:"phone,omitempty" gorm:"column:phone;index:idx_message_logs_sid_phone"`
	SID            string    `json:"sid,omitempty" gorm:"column:sid;index:idx_message_logs_sid_phone"`
	Status         string    `json:"status" gorm:"column:status"` // success or failed
	ProviderStatus string    `json:"provider_status,omitempty" gorm:"column:provider_status"`
	Error          string    `json:"error,omitempty" gorm:"column:error;type:text"`
	SenderID       *int64    `json:"sender_id,omitempty" gorm:"column:sender_id"`
	Finished       bool      `json:"finished,omitempty" gorm:"column:finished;default:false"`
	Date           time.Time `json:"date,omitempty" gorm:"column:date;autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for the MessageLog model.
func (MessageLog) TableName() string {
	return "message_logs"
}

// TerminalProviderStatuses are delivery statuses after which the provider
// sends no further callbacks for a message.
var TerminalProviderStatuses = map[string]bool{
	"delivered":   true,
	"failed":      true,
	"undelivered": true,
}
