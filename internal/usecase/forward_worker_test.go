package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/acounsel/asfour/internal/model"
)

func TestForwardEmailHTML(t *testing.T) {
	resp := &model.Response{Phone: "+15551234567", Body: "need help <now>"}
	got := forwardEmailHTML(resp)
	assert.Equal(t, "<p>msg from +15551234567: need help &lt;now&gt;</p>", got)
}

func TestForwardEmailHTML_VoiceResponse(t *testing.T) {
	resp := &model.Response{
		Phone:         "+15551234567",
		Recording:     "https://api.example.org/recordings/CA2",
		Transcription: "call me back",
	}
	got := forwardEmailHTML(resp)
	assert.Contains(t, got, `<a href="https://api.example.org/recordings/CA2">`)
	assert.Contains(t, got, "<p>Transcription: call me back</p>")
}
