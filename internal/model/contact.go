package model

import (
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Channel is a communication medium.
type Channel string

const (
	ChannelSMS        Channel = "sms"
	ChannelVoice      Channel = "voice"
	ChannelEmail      Channel = "email"
	ChannelWhatsApp   Channel = "whatsapp"
	ChannelConference Channel = "conference"
	ChannelMixed      Channel = "mixed"
)

// WhatsAppPrefix is the scheme marker the provider expects on WhatsApp
// numbers, and the one it puts on inbound WhatsApp senders.
const WhatsAppPrefix = "whatsapp:"

// Contact is a recipient identity within one organization. (org_id,
// phone) is unique; the constraint backs the import upsert's conflict
// target and makes concurrent get_or_create safe.
type Contact struct {
	ID              int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	OrgID           int64     `json:"org_id" gorm:"column:org_id;uniqueIndex:idx_contacts_org_phone" validate:"required"`
	FirstName       string    `json:"first_name,omitempty" gorm:"column:first_name"`
	LastName        string    `json:"last_name,omitempty" gorm:"column:last_name"`
	Phone           string    `json:"phone,omitempty" gorm:"column:phone;uniqueIndex:idx_contacts_org_phone"`
	Email           string    `json:"email,omitempty" gorm:"column:email"`
	Address         string    `json:"address,omitempty" gorm:"column:address"`
	PreferredMethod Channel   `json:"preferred_method,omitempty" gorm:"column:preferred_method;default:sms"`
	Tags            []Tag     `json:"tags,omitempty" gorm:"many2many:contact_tags"`
	HasConsented    bool      `json:"has_consented,omitempty" gorm:"column:has_consented;default:false"`
	HasWhatsApp     bool      `json:"has_whatsapp,omitempty" gorm:"column:has_whatsapp;default:false"`
	IsInternational bool      `json:"is_international,omitempty" gorm:"column:is_international;default:false"`
	Unsubscribed    bool      `json:"unsubscribed,omitempty" gorm:"column:unsubscribed;default:false"`
	DateAdded       time.Time `json:"date_added,omitempty" gorm:"column:date_added;autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for the Contact model.
func (Contact) TableName() string {
	return "contacts"
}

// BeforeSave normalizes the phone number on every write.
func (c *Contact) BeforeSave(tx *gorm.DB) error {
	c.Phone = NormalizePhone(c.Phone, c.IsInternational)
	return nil
}

// FullName returns "First Last" with surrounding whitespace trimmed.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

var phoneStripper = regexp.MustCompile(`[\s\-().]`)

// NormalizePhone converts a raw phone number to E.164. A leading WhatsApp
// scheme marker is stripped first. Numbers already carrying a "+" pass
// through unchanged; international numbers get a bare "+" prefix; anything
// else is assumed to be a national number and gets "+1".
func NormalizePhone(raw string, international bool) string {
	phone := strings.TrimPrefix(strings.TrimSpace(raw), WhatsAppPrefix)
	phone = phoneStripper.ReplaceAllString(phone, "")
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	if international {
		return "+" + phone
	}
	return "+1" + phone
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmail returns the first email-shaped token in body, or "".
// Best effort; no validation beyond the pattern.
func ExtractEmail(body string) string {
	return emailPattern.FindString(body)
}
