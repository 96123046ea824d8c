package model

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// DispatchJob is the payload published to the dispatch stream. The
// webhook/API tier enqueues it and returns; a worker fans the message out.
type DispatchJob struct {
	JobID     string `json:"job_id" validate:"required"`
	OrgID     int64  `json:"org_id" validate:"required"`
	MessageID int64  `json:"message_id" validate:"required"`
	SenderID  *int64 `json:"sender_id,omitempty"`
}

// DispatchSubject returns the stream subject a job is published on.
func DispatchSubject(prefix string, orgID int64) string {
	return prefix + "." + strconv.FormatInt(orgID, 10)
}

// ExhaustedJob records a dispatch job that ran out of queue redeliveries.
type ExhaustedJob struct {
	ID          int64          `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID       int64          `json:"org_id" gorm:"column:org_id;index"`
	Subject     string         `json:"subject" gorm:"column:subject"`
	Payload     datatypes.JSON `json:"payload" gorm:"type:jsonb;column:payload"`
	LastError   string         `json:"last_error,omitempty" gorm:"column:last_error;type:text"`
	Resolved    bool           `json:"resolved" gorm:"column:resolved;default:false"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	Deliveries  int            `json:"deliveries" gorm:"column:deliveries"`
	Description string         `json:"description,omitempty" gorm:"column:description"`
}

// TableName specifies the table name for the ExhaustedJob model.
func (ExhaustedJob) TableName() string {
	return "exhausted_jobs"
}
