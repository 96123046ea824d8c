package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/acounsel/asfour/internal/apperrors"
	"github.com/acounsel/asfour/internal/model"
	storagemock "github.com/acounsel/asfour/internal/storage/mock"
	"github.com/acounsel/asfour/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop()
}

func matcherFixture() (*AutoreplyMatcher, *storagemock.AutoreplyRepoMock, *storagemock.ContactRepoMock) {
	rules := new(storagemock.AutoreplyRepoMock)
	contacts := new(storagemock.ContactRepoMock)
	return NewAutoreplyMatcher(rules, contacts), rules, contacts
}

func TestMatch_CaseInsensitiveTrigger(t *testing.T) {
	m, rules, contacts := matcherFixture()
	org := &model.Organization{ID: 1, ResponseMsg: "default reply"}
	contact := &model.Contact{ID: 5, OrgID: 1, Email: "a@example.org"}

	rules.On("FindByOrg", testifymock.Anything, int64(1)).Return([]model.Autoreply{
		{ID: 1, OrgID: 1, Trigger: "STOP", Reply: "You're unsubscribed"},
	}, nil)
	contacts.On("Update", testifymock.Anything, contact).Return(nil)

	reply := m.Match(context.Background(), org, contact, "stop")
	assert.Equal(t, "You're unsubscribed", reply)
	assert.True(t, contact.Unsubscribed)
}

func TestMatch_FirstRuleInInsertionOrderWins(t *testing.T) {
	m, rules, _ := matcherFixture()
	org := &model.Organization{ID: 1}
	contact := &model.Contact{ID: 5, OrgID: 1, Email: "a@example.org"}

	rules.On("FindByOrg", testifymock.Anything, int64(1)).Return([]model.Autoreply{
		{ID: 1, OrgID: 1, Trigger: "info", Reply: "first"},
		{ID: 2, OrgID: 1, Trigger: "info", Reply: "second"},
	}, nil)

	reply := m.Match(context.Background(), org, contact, "  Info ")
	assert.Equal(t, "first", reply)
}

func TestMatch_AttachesRuleTags(t *testing.T) {
	m, rules, contacts := matcherFixture()
	org := &model.Organization{ID: 1}
	contact := &model.Contact{ID: 5, OrgID: 1, Email: "a@example.org"}
	tags := []model.Tag{{ID: 3, OrgID: 1, Name: "volunteer"}}

	rules.On("FindByOrg", testifymock.Anything, int64(1)).Return([]model.Autoreply{
		{ID: 1, OrgID: 1, Trigger: "volunteer", Reply: "Welcome aboard", Tags: tags},
	}, nil)
	contacts.On("AttachTags", testifymock.Anything, contact, tags).Return(nil)

	reply := m.Match(context.Background(), org, contact, "volunteer")
	assert.Equal(t, "Welcome aboard", reply)
	contacts.AssertExpectations(t)
}

func TestMatch_EmailCapturePromptBeforeDefault(t *testing.T) {
	m, rules, _ := matcherFixture()
	org := &model.Organization{ID: 1, ResponseMsg: "default reply"}
	contact := &model.Contact{ID: 5, OrgID: 1} // no email yet

	rules.On("FindByOrg", testifymock.Anything, int64(1)).Return([]model.Autoreply{}, nil)

	reply := m.Match(context.Background(), org, contact, "hello")
	assert.Equal(t, EmailCapturePrompt, reply)
}

func TestMatch_DefaultReplyWhenContactHasEmail(t *testing.T) {
	m, rules, _ := matcherFixture()
	org := &model.Organization{ID: 1, ResponseMsg: "custom default"}
	contact := &model.Contact{ID: 5, OrgID: 1, Email: "a@example.org"}

	rules.On("FindByOrg", testifymock.Anything, int64(1)).Return([]model.Autoreply{}, nil)

	reply := m.Match(context.Background(), org, contact, "hello")
	assert.Equal(t, "custom default", reply)
}

func TestMatch_StockDefaultWhenOrgNeverSetOne(t *testing.T) {
	m, rules, _ := matcherFixture()
	org := &model.Organization{ID: 1}
	contact := &model.Contact{ID: 5, OrgID: 1, Email: "a@example.org"}

	rules.On("FindByOrg", testifymock.Anything, int64(1)).Return([]model.Autoreply{}, nil)

	reply := m.Match(context.Background(), org, contact, "hello")
	assert.Equal(t, model.DefaultResponseMsg, reply)
}

func TestMatch_RuleLookupFailureDegradesToDefault(t *testing.T) {
	m, rules, _ := matcherFixture()
	org := &model.Organization{ID: 1, ResponseMsg: "default reply"}
	contact := &model.Contact{ID: 5, OrgID: 1}

	rules.On("FindByOrg", testifymock.Anything, int64(1)).Return(nil, apperrors.ErrDatabase)

	reply := m.Match(context.Background(), org, contact, "hello")
	assert.Equal(t, "default reply", reply)
}
