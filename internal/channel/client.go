package channel

import (
	"context"

	"github.com/acounsel/asfour/internal/model"
)

// Kind is a provider-side send verb. Channel kinds map onto provider
// operations through kindResources; there is no runtime attribute lookup.
type Kind string

const (
	KindSMS      Kind = "sms"
	KindWhatsApp Kind = "whatsapp"
	KindVoice    Kind = "voice"
	KindCall     Kind = "call" // conference leg
)

// kindResources maps each send kind to the provider REST resource.
var kindResources = map[Kind]string{
	KindSMS:      "Messages.json",
	KindWhatsApp: "Messages.json",
	KindVoice:    "Calls.json",
	KindCall:     "Calls.json",
}

// KindForChannel maps a message channel to its provider send kind.
func KindForChannel(ch model.Channel) (Kind, bool) {
	switch ch {
	case model.ChannelSMS, model.ChannelMixed:
		return KindSMS, true
	case model.ChannelWhatsApp:
		return KindWhatsApp, true
	case model.ChannelVoice:
		return KindVoice, true
	case model.ChannelConference:
		return KindCall, true
	default:
		return "", false
	}
}

// Credentials are the per-organization provider account credentials.
type Credentials struct {
	AccountSID string
	AuthToken  string
}

// SendRequest is a uniform payload for one outbound provider operation.
type SendRequest struct {
	Kind           Kind
	From           string
	To             string
	Body           string // message kinds
	MediaURL       string // optional attachment, message kinds
	CallbackURL    string // voice kinds: URL serving the call markup
	StatusCallback string // optional delivery status callback URL
}

// Client is the uniform interface over the telephony provider. It returns
// the provider message/call identifier or fails.
type Client interface {
	Send(ctx context.Context, creds Credentials, req SendRequest) (string, error)
	CreateConferenceParticipant(ctx context.Context, creds Credentials, conference, from, to string) (string, error)
}
