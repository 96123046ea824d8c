package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/model"
	"github.com/acounsel/asfour/internal/storage"
	"github.com/acounsel/asfour/pkg/logger"
)

// EmailCapturePrompt is returned when no rule matches and the contact has
// not yet shared an email address.
const EmailCapturePrompt = "Thanks for your message. Reply with your email address so we can stay in touch, or STOP to unsubscribe."

// AutoreplyMatcher resolves the reply text for an inbound body against an
// organization's rules.
type AutoreplyMatcher struct {
	rules    storage.AutoreplyRepo
	contacts storage.ContactRepo
}

// NewAutoreplyMatcher creates a matcher over the rule and contact repos.
func NewAutoreplyMatcher(rules storage.AutoreplyRepo, contacts storage.ContactRepo) *AutoreplyMatcher {
	return &AutoreplyMatcher{rules: rules, contacts: contacts}
}

// Match scans the organization's rules in insertion order for a
// case-insensitive exact match of the trimmed body. The first match wins:
// its tags attach to the contact (additive) and its reply is returned. With
// no match the contact's missing email takes priority over the org default.
// Rule lookup failures degrade to the default reply; the sender must always
// get something back.
func (m *AutoreplyMatcher) Match(ctx context.Context, org *model.Organization, contact *model.Contact, body string) string {
	log := logger.FromContext(ctx)
	trimmed := strings.TrimSpace(body)

	rules, err := m.rules.FindByOrg(ctx, org.ID)
	if err != nil {
		log.Warn("Failed to load autoreply rules, using default reply",
			zap.Int64("org_id", org.ID), zap.Error(err))
		return org.ReplyDefault()
	}

	for i := range rules {
		rule := &rules[i]
		if !strings.EqualFold(rule.Trigger, trimmed) {
			continue
		}

		if len(rule.Tags) > 0 && contact != nil {
			if err := m.contacts.AttachTags(ctx, contact, rule.Tags); err != nil {
				log.Warn("Failed to attach autoreply tags",
					zap.Int64("rule_id", rule.ID),
					zap.Int64("contact_id", contact.ID),
					zap.Error(err))
			}
		}

		// A STOP rule doubles as the unsubscribe mechanism.
		if contact != nil && strings.EqualFold(rule.Trigger, "stop") && !contact.Unsubscribed {
			contact.Unsubscribed = true
			if err := m.contacts.Update(ctx, contact); err != nil {
				log.Warn("Failed to unsubscribe contact",
					zap.Int64("contact_id", contact.ID), zap.Error(err))
			}
		}

		return rule.Reply
	}

	if contact != nil && contact.Email == "" {
		return EmailCapturePrompt
	}
	return org.ReplyDefault()
}
