package reply

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkupNested(t *testing.T) {
	doc := VoiceResponse()
	g := doc.Gather(map[string]any{"input": "speech dtmf", "numDigits": 1.0})
	g.Say(map[string]any{"voice": "alice"}, "Press 1 & wait")
	doc.Hangup()

	want := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Response><Gather input="speech dtmf" numDigits="1"><Say voice="alice">Press 1 &amp; wait</Say></Gather><Hangup/></Response>`
	assert.Equal(t, want, doc.MarkupString())
	assert.Equal(t, want, doc.ToString())
}

func TestMarkupMessaging(t *testing.T) {
	doc := MessagingResponse()
	m := doc.Message("Hello")
	m.Media("https://example.com/cat.png")

	assert.Equal(t,
		`<?xml version="1.0" encoding="UTF-8"?><Response><Message>Hello<Media>https://example.com/cat.png</Media></Message></Response>`,
		doc.MarkupString())
}

func TestMarkupEmptyDocument(t *testing.T) {
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><Response/>`, FaxResponse().MarkupString())
}

func TestMarkupChildIsNotRoot(t *testing.T) {
	doc := VoiceResponse()
	say := doc.Say("x")
	assert.Equal(t, `<Say>x</Say>`, say.MarkupString())
}
