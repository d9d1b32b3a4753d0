package reply

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strings"
)

// Element is a node of a voice, messaging or fax markup document. Verb
// methods accept an optional attribute map followed by optional text, in
// any order, and return the new child so nested verbs can be built:
//
//	doc := reply.VoiceResponse()
//	gather := doc.Gather(map[string]any{"input": "speech"})
//	gather.Say("Tell us what you need")
type Element struct {
	name     string
	attrs    map[string]string
	text     string
	children []*Element
	root     bool
}

func newRoot() *Element {
	return &Element{name: "Response", root: true}
}

// VoiceResponse starts a voice document.
func VoiceResponse() *Element { return newRoot() }

// MessagingResponse starts a messaging document.
func MessagingResponse() *Element { return newRoot() }

// FaxResponse starts a fax document.
func FaxResponse() *Element { return newRoot() }

// AddChild appends a child element named name. Arguments are handled as by
// the verb methods.
func (e *Element) AddChild(name string, args ...any) *Element {
	child := &Element{name: name}
	for _, arg := range args {
		switch a := arg.(type) {
		case nil:
		case string:
			child.text = a
		case map[string]any:
			if child.attrs == nil {
				child.attrs = make(map[string]string, len(a))
			}
			for k, v := range a {
				child.attrs[k] = attrString(v)
			}
		case map[string]string:
			if child.attrs == nil {
				child.attrs = make(map[string]string, len(a))
			}
			for k, v := range a {
				child.attrs[k] = v
			}
		default:
			child.text = fmt.Sprint(a)
		}
	}
	e.children = append(e.children, child)
	return child
}

func attrString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(x)
	}
}

func (e *Element) Say(args ...any) *Element        { return e.AddChild("Say", args...) }
func (e *Element) Play(args ...any) *Element       { return e.AddChild("Play", args...) }
func (e *Element) Pause(args ...any) *Element      { return e.AddChild("Pause", args...) }
func (e *Element) Gather(args ...any) *Element     { return e.AddChild("Gather", args...) }
func (e *Element) Dial(args ...any) *Element       { return e.AddChild("Dial", args...) }
func (e *Element) Number(args ...any) *Element     { return e.AddChild("Number", args...) }
func (e *Element) Client(args ...any) *Element     { return e.AddChild("Client", args...) }
func (e *Element) Conference(args ...any) *Element { return e.AddChild("Conference", args...) }
func (e *Element) Queue(args ...any) *Element      { return e.AddChild("Queue", args...) }
func (e *Element) Sip(args ...any) *Element        { return e.AddChild("Sip", args...) }
func (e *Element) Record(args ...any) *Element     { return e.AddChild("Record", args...) }
func (e *Element) Enqueue(args ...any) *Element    { return e.AddChild("Enqueue", args...) }
func (e *Element) Leave(args ...any) *Element      { return e.AddChild("Leave", args...) }
func (e *Element) Reject(args ...any) *Element     { return e.AddChild("Reject", args...) }
func (e *Element) Hangup(args ...any) *Element     { return e.AddChild("Hangup", args...) }
func (e *Element) Redirect(args ...any) *Element   { return e.AddChild("Redirect", args...) }
func (e *Element) Message(args ...any) *Element    { return e.AddChild("Message", args...) }
func (e *Element) Body(args ...any) *Element       { return e.AddChild("Body", args...) }
func (e *Element) Media(args ...any) *Element      { return e.AddChild("Media", args...) }
func (e *Element) Receive(args ...any) *Element    { return e.AddChild("Receive", args...) }

// MarkupString renders the document rooted at e. Root documents carry the
// XML declaration.
func (e *Element) MarkupString() string {
	var sb strings.Builder
	if e.root {
		sb.WriteString(xml.Header[:len(xml.Header)-1])
	}
	e.write(&sb)
	return sb.String()
}

// ToString is MarkupString under the name scripts call implicitly.
func (e *Element) ToString() string {
	return e.MarkupString()
}

func (e *Element) write(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(e.name)

	keys := make([]string, 0, len(e.attrs))
	for k := range e.attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteString(`="`)
		xml.EscapeText(sb, []byte(e.attrs[k]))
		sb.WriteByte('"')
	}

	if e.text == "" && len(e.children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	xml.EscapeText(sb, []byte(e.text))
	for _, c := range e.children {
		c.write(sb)
	}
	sb.WriteString("</")
	sb.WriteString(e.name)
	sb.WriteByte('>')
}
