package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvelopeNativeCallback(t *testing.T) {
	body := []byte(`{
		"instanceId": "inst-1",
		"phone": "5521999998888",
		"messageId": "wamid-abc",
		"momment": 1756500000000,
		"text": {"message": "quero transferir meu carro"},
		"isGroup": false
	}`)

	env := ParseEnvelope(body)
	assert.True(t, env.Parsed)
	assert.Equal(t, "inst-1", env.InstanceID)
	assert.Equal(t, "5521999998888", env.From)
	assert.Equal(t, "quero transferir meu carro", env.Text)
	assert.Equal(t, "wamid-abc", env.MessageID)
	assert.Equal(t, int64(1756500000), env.Timestamp)
	assert.False(t, env.HasMedia())
}

func TestParseEnvelopeNativeMedia(t *testing.T) {
	body := []byte(`{
		"phone": "5521999998888",
		"type": "ReceivedCallback",
		"document": {"mediaUrl": "https://media.example/crlv.pdf", "fileName": "crlv.pdf", "mimeType": "application/pdf"}
	}`)

	env := ParseEnvelope(body)
	assert.True(t, env.Parsed)
	assert.True(t, env.HasMedia())
	assert.Equal(t, "https://media.example/crlv.pdf", env.Media.URL)
	assert.Equal(t, "application/pdf", env.Media.MimeType)
}

func TestParseEnvelopeWrappedData(t *testing.T) {
	body := []byte(`{
		"instance": "inst-2",
		"type": "message",
		"data": {"from": "5521888887777", "body": "bom dia", "messageId": "m-2", "timestamp": 1756500000}
	}`)

	env := ParseEnvelope(body)
	assert.True(t, env.Parsed)
	assert.Equal(t, "inst-2", env.InstanceID)
	assert.Equal(t, "5521888887777", env.From)
	assert.Equal(t, "bom dia", env.Text)
	assert.Equal(t, "m-2", env.MessageID)
	assert.Equal(t, int64(1756500000), env.Timestamp)
}

func TestParseEnvelopeFlatEvent(t *testing.T) {
	body := []byte(`{"from": "5521777776666", "text": "oi", "id": "m-3"}`)

	env := ParseEnvelope(body)
	assert.True(t, env.Parsed)
	assert.Equal(t, "5521777776666", env.From)
	assert.Equal(t, "oi", env.Text)
	assert.Equal(t, "m-3", env.MessageID)
}

func TestParseEnvelopeGenericScan(t *testing.T) {
	// No known shape matches; the field-candidate scan picks up sender/content.
	body := []byte(`{"sender": "5521666665555", "content": "tudo bem?"}`)

	env := ParseEnvelope(body)
	assert.True(t, env.Parsed)
	assert.Equal(t, "5521666665555", env.From)
	assert.Equal(t, "tudo bem?", env.Text)
}

func TestParseEnvelopeFailsClosed(t *testing.T) {
	for name, body := range map[string][]byte{
		"NotJSON":         []byte("definitely not json"),
		"EmptyObject":     []byte(`{}`),
		"UnrelatedFields": []byte(`{"foo": "bar", "baz": 3}`),
	} {
		t.Run(name, func(t *testing.T) {
			env := ParseEnvelope(body)
			assert.False(t, env.Parsed)
			assert.Equal(t, "unknown", env.From)
			assert.Empty(t, env.Text)
		})
	}
}

func TestParseEnvelopeNumericFieldsTolerated(t *testing.T) {
	// Some gateway versions ship ids and phones as numbers.
	body := []byte(`{"from": "5521999998888", "id": 12345, "timestamp": "1756500000"}`)

	env := ParseEnvelope(body)
	assert.True(t, env.Parsed)
	assert.Equal(t, "12345", env.MessageID)
	assert.Equal(t, int64(1756500000), env.Timestamp)
}

func TestParseEnvelopeGroupFlag(t *testing.T) {
	body := []byte(`{"phone": "5521999998888", "text": {"message": "oi grupo"}, "isGroup": true}`)

	env := ParseEnvelope(body)
	assert.True(t, env.Parsed)
	assert.True(t, env.IsGroup)
}

func TestParseEnvelopeKeepsRawPayload(t *testing.T) {
	body := []byte(`{"phone": "5521999998888", "text": {"message": "oi"}}`)
	env := ParseEnvelope(body)
	assert.JSONEq(t, string(body), string(env.Raw))
}
