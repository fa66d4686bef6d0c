package model

import (
	"encoding/json"
	"strconv"

	"gorm.io/datatypes"
)

// Media message types forwarded by the gateway.
var mediaTypes = map[string]bool{
	"image":    true,
	"document": true,
	"audio":    true,
	"video":    true,
}

// MediaRef points at an attachment carried by a webhook payload.
type MediaRef struct {
	URL      string `json:"mediaUrl"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

// Envelope is the normalized form of an inbound webhook payload. The
// gateway has shipped at least three payload shapes over time; the parser
// tries them in a fixed priority order and fails closed to an unparsed
// envelope instead of guessing.
type Envelope struct {
	InstanceID   string
	From         string
	Text         string
	MessageID    string
	Type         string
	Timestamp    int64
	IsGroup      bool
	IsNewsletter bool
	Media        *MediaRef
	Parsed       bool
	Raw          datatypes.JSON
}

// HasMedia reports whether the payload references an attachment rather
// than (or in addition to) text.
func (e *Envelope) HasMedia() bool {
	return e.Media != nil && e.Media.URL != ""
}

// flexString tolerates string or numeric JSON values.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

// flexText tolerates both the gateway's nested {"message": "..."} text
// object and a plain string.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &nested); err == nil {
		*f = flexText(nested.Message)
		return nil
	}
	*f = ""
	return nil
}

// flexTime tolerates unix seconds, unix milliseconds and numeric strings.
type flexTime int64

func (f *flexTime) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		if n > 1e12 { // milliseconds
			n /= 1000
		}
		*f = flexTime(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, perr := strconv.ParseInt(s, 10, 64); perr == nil {
			if parsed > 1e12 {
				parsed /= 1000
			}
			*f = flexTime(parsed)
		}
	}
	return nil
}

// zapiCallback is the gateway's native ReceivedCallback shape.
type zapiCallback struct {
	InstanceID   flexString      `json:"instanceId"`
	Phone        string          `json:"phone"`
	Type         string          `json:"type"`
	Text         flexText        `json:"text"`
	Message      json.RawMessage `json:"message"`
	Image        *MediaRef       `json:"image"`
	Document     *MediaRef       `json:"document"`
	Audio        *MediaRef       `json:"audio"`
	Video        *MediaRef       `json:"video"`
	MessageID    flexString `json:"messageId"`
	Momment      flexTime   `json:"momment"`
	IsGroup      bool       `json:"isGroup"`
	IsNewsletter bool       `json:"isNewsletter"`
}

// wrappedData is the {"data": {...}} shape some gateway versions send.
type wrappedData struct {
	Instance flexString `json:"instance"`
	Type     string     `json:"type"`
	Data     *flatEvent `json:"data"`
}

// flatEvent is the top-level {from, body|text, id} shape.
type flatEvent struct {
	Instance     flexString `json:"instanceId"`
	From         string     `json:"from"`
	Type         string     `json:"type"`
	Text         flexText   `json:"text"`
	Body         flexText   `json:"body"`
	Message      flexText   `json:"message"`
	Content      flexText   `json:"content"`
	MessageID    flexString `json:"messageId"`
	ID           flexString `json:"id"`
	Timestamp    flexTime   `json:"timestamp"`
	Date         flexTime   `json:"date"`
	IsGroup      bool       `json:"isGroup"`
	IsNewsletter bool       `json:"isNewsletter"`
}

func (f *flatEvent) text() string {
	for _, t := range []flexText{f.Text, f.Body, f.Message, f.Content} {
		if t != "" {
			return string(t)
		}
	}
	return ""
}

func (f *flatEvent) messageID() string {
	if f.MessageID != "" {
		return string(f.MessageID)
	}
	return string(f.ID)
}

func (f *flatEvent) timestamp() int64 {
	if f.Timestamp != 0 {
		return int64(f.Timestamp)
	}
	return int64(f.Date)
}

// ParseEnvelope normalizes a raw webhook body. It never fails: when no
// known shape matches, the returned envelope has Parsed=false, From
// "unknown" and empty text, and the caller decides what to do with it.
func ParseEnvelope(body []byte) Envelope {
	env := Envelope{
		From: "unknown",
		Raw:  datatypes.JSON(body),
	}

	// Shape 1: gateway-native callback keyed by "phone".
	var native zapiCallback
	if err := json.Unmarshal(body, &native); err == nil && native.Phone != "" {
		env.Parsed = true
		env.InstanceID = string(native.InstanceID)
		env.From = native.Phone
		env.Type = native.Type
		env.Text = string(native.Text)
		env.MessageID = string(native.MessageID)
		env.Timestamp = int64(native.Momment)
		env.IsGroup = native.IsGroup
		env.IsNewsletter = native.IsNewsletter

		// "message" carries either a media reference or a nested text object
		// depending on the message type.
		var msgMedia *MediaRef
		if len(native.Message) > 0 {
			var ref MediaRef
			if err := json.Unmarshal(native.Message, &ref); err == nil && ref.URL != "" {
				msgMedia = &ref
			} else if env.Text == "" {
				var nested struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(native.Message, &nested); err == nil {
					env.Text = nested.Text
				}
			}
		}
		env.Media = firstMedia(msgMedia, native.Image, native.Document, native.Audio, native.Video)
		return env
	}

	// Shape 2: event wrapped under "data".
	var wrapped wrappedData
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil && wrapped.Data.From != "" {
		d := wrapped.Data
		env.Parsed = true
		env.InstanceID = string(wrapped.Instance)
		env.From = d.From
		env.Type = firstNonEmpty(wrapped.Type, d.Type)
		env.Text = d.text()
		env.MessageID = d.messageID()
		env.Timestamp = d.timestamp()
		env.IsGroup = d.IsGroup
		env.IsNewsletter = d.IsNewsletter
		return env
	}

	// Shape 3: flat event keyed by "from".
	var flat flatEvent
	if err := json.Unmarshal(body, &flat); err == nil && flat.From != "" {
		env.Parsed = true
		env.InstanceID = string(flat.Instance)
		env.From = flat.From
		env.Type = flat.Type
		env.Text = flat.text()
		env.MessageID = flat.messageID()
		env.Timestamp = flat.timestamp()
		env.IsGroup = flat.IsGroup
		env.IsNewsletter = flat.IsNewsletter
		return env
	}

	// Last resort: scan common field-name candidates at the top level and
	// one level under "data". Degrades to the unparsed sentinel.
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return env
	}

	scopes := []map[string]json.RawMessage{generic}
	if dataRaw, ok := generic["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(dataRaw, &inner); err == nil {
			scopes = append(scopes, inner)
		}
	}

	for _, field := range []string{"text", "body", "message", "content", "msg"} {
		if env.Text != "" {
			break
		}
		for _, scope := range scopes {
			if raw, ok := scope[field]; ok {
				var t flexText
				if err := t.UnmarshalJSON(raw); err == nil && t != "" {
					env.Text = string(t)
					break
				}
			}
		}
	}

	for _, field := range []string{"from", "phone", "sender", "number"} {
		if env.From != "unknown" {
			break
		}
		for _, scope := range scopes {
			if raw, ok := scope[field]; ok {
				var s flexString
				if err := s.UnmarshalJSON(raw); err == nil && s != "" {
					env.From = string(s)
					break
				}
			}
		}
	}

	env.Parsed = env.From != "unknown" || env.Text != ""
	return env
}

// MediaTypePayload reports whether the gateway message type denotes media.
func MediaTypePayload(messageType string) bool {
	return mediaTypes[messageType]
}

func firstMedia(refs ...*MediaRef) *MediaRef {
	for _, r := range refs {
		if r != nil && r.URL != "" {
			return r
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
