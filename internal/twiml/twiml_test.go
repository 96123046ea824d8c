package twiml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_MessageReply(t *testing.T) {
	out, err := NewResponse().AddMessage("Thank you, your message has been received").Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, string(out), "<Response><Message>Thank you, your message has been received</Message></Response>")
}

func TestRender_EmptyResponse(t *testing.T) {
	out, err := NewResponse().Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "<Response></Response>")
}

func TestRender_VoiceVerbsInOrder(t *testing.T) {
	out, err := NewResponse().
		AddSay("Please leave a message after the tone").
		AddRecord("https://example.org/webhooks/1/voice", 120).
		Render()
	require.NoError(t, err)

	s := string(out)
	sayIdx := strings.Index(s, "<Say>Please leave a message after the tone</Say>")
	recIdx := strings.Index(s, `<Record action="https://example.org/webhooks/1/voice" maxLength="120"></Record>`)
	assert.GreaterOrEqual(t, sayIdx, 0)
	assert.Greater(t, recIdx, sayIdx)
}

func TestRender_EscapesBody(t *testing.T) {
	out, err := NewResponse().AddMessage("tickets < $5 & up").Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "tickets &lt; $5 &amp; up")
}

func TestRender_DialConference(t *testing.T) {
	out, err := NewResponse().AddDialConference("org-1-msg-7").Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "<Dial><Conference>org-1-msg-7</Conference></Dial>")
}
