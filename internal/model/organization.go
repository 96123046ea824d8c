package model

import (
	"time"
)

// DefaultResponseMsg is the reply sent when no autoreply rule matches.
const DefaultResponseMsg = "Thank you, your message has been received"

// Organization is the tenant boundary. Every Contact, Tag, Message,
// MessageLog, Response and Autoreply belongs to exactly one Organization.
type Organization struct {
	ID           int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Name         string    `json:"name" gorm:"column:name" validate:"required"`
	AccountSID   string    `json:"account_sid,omitempty" gorm:"column:account_sid;type:text"`
	AuthToken    string    `json:"-" gorm:"column:auth_token;type:text"`
	Phone        string    `json:"phone,omitempty" gorm:"column:phone"` // origin number for outbound sends
	ResponseMsg  string    `json:"response_msg,omitempty" gorm:"column:response_msg"`
	ForwardPhone string    `json:"forward_phone,omitempty" gorm:"column:forward_phone"`
	ForwardEmail string    `json:"forward_email,omitempty" gorm:"column:forward_email"`
	URL          string    `json:"url,omitempty" gorm:"column:url"`
	CreatedAt    time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for the Organization model.
func (Organization) TableName() string {
	return "organizations"
}

// Credentials returns the provider account SID, auth token and origin phone.
func (o *Organization) Credentials() (string, string, string) {
	return o.AccountSID, o.AuthToken, o.Phone
}

// ReplyDefault returns the configured default reply, falling back to the
// stock acknowledgement when the organization never set one.
func (o *Organization) ReplyDefault() string {
	if o.ResponseMsg != "" {
		return o.ResponseMsg
	}
	return DefaultResponseMsg
}

// UserProfile identifies a human sender within an organization.
type UserProfile struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID     int64     `json:"org_id" gorm:"column:org_id;index" validate:"required"`
	Name      string    `json:"name,omitempty" gorm:"column:name"`
	Email     string    `json:"email,omitempty" gorm:"column:email" validate:"omitempty,email"`
	Phone     string    `json:"phone,omitempty" gorm:"column:phone"`
	IsAdmin   bool      `json:"is_admin,omitempty" gorm:"column:is_admin;default:false"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for the UserProfile model.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// Tag is an organization-scoped label used both for recipient targeting
// and for autoreply side effects.
type Tag struct {
	ID    int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID int64  `json:"org_id" gorm:"column:org_id;index" validate:"required"`
	Name  string `json:"name" gorm:"column:name" validate:"required"`
}

// TableName specifies the table name for the Tag model.
func (Tag) TableName() string {
	return "tags"
}
