// Package twiml renders the provider's XML reply markup. Handlers build a
// response document and write it back on the webhook HTTP response; the
// provider executes the verbs in document order.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// ContentType is the MIME type webhook handlers set when returning markup.
const ContentType = "application/xml"

// Message is a reply verb on a messaging response.
type Message struct {
	XMLName xml.Name `xml:"Message"`
	Body    string   `xml:",chardata"`
}

// Say speaks text to the caller.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Body    string   `xml:",chardata"`
}

// Play streams an audio resource to the caller.
type Play struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

// Record starts recording the caller, posting the result to Action.
type Record struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr,omitempty"`
	MaxLength int      `xml:"maxLength,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
}

// Dial connects the caller to a conference or number.
type Dial struct {
	XMLName    xml.Name `xml:"Dial"`
	Conference string   `xml:"Conference,omitempty"`
	Number     string   `xml:"Number,omitempty"`
}

// Response is the root document. Verbs render in the order they are added.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// NewResponse creates an empty response document.
func NewResponse() *Response {
	return &Response{}
}

// AddMessage appends a reply message verb.
func (r *Response) AddMessage(body string) *Response {
	r.Verbs = append(r.Verbs, Message{Body: body})
	return r
}

// AddSay appends a spoken text verb.
func (r *Response) AddSay(body string) *Response {
	r.Verbs = append(r.Verbs, Say{Body: body})
	return r
}

// AddPlay appends an audio playback verb.
func (r *Response) AddPlay(url string) *Response {
	r.Verbs = append(r.Verbs, Play{URL: url})
	return r
}

// AddRecord appends a recording verb.
func (r *Response) AddRecord(action string, maxLength int) *Response {
	r.Verbs = append(r.Verbs, Record{Action: action, MaxLength: maxLength})
	return r
}

// AddDialConference appends a verb joining the caller to a named conference.
func (r *Response) AddDialConference(name string) *Response {
	r.Verbs = append(r.Verbs, Dial{Conference: name})
	return r
}

// Render serializes the document with the XML declaration the provider
// expects. An empty response renders as a bare <Response/> element, which
// the provider treats as "no reply".
func (r *Response) Render() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to render response markup: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// MarshalXML flattens the verb list under the root element.
func (r *Response) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "Response"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, verb := range r.Verbs {
		if err := e.Encode(verb); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}
