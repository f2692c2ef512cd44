package transcript

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/inercia/carechat/internal/conversation"
	"github.com/inercia/carechat/internal/fileutil"
)

// Document is the content of one exported transcript.
type Document struct {
	Role       string                     `json:"role"`
	Identity   string                     `json:"identity"`
	Mode       string                     `json:"mode,omitempty"`
	Messages   []conversation.Message     `json:"messages"`
	Note       *conversation.DocumentNote `json:"note,omitempty"`
	ExportedAt time.Time                  `json:"exported_at"`
}

type renderedMessage struct {
	Class string
	Label string
	Time  string
	Body  template.HTML
}

type page struct {
	Title      string
	Role       string
	Identity   string
	Mode       string
	ExportedAt string
	Note       template.HTML
	NoteOwner  string
	Messages   []renderedMessage
}

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.msg { margin: .5rem 0; padding: .5rem .75rem; border-radius: .5rem; }
.self { background: #e3f2fd; }
.peer { background: #f1f8e9; }
.system { background: #fafafa; color: #666; font-style: italic; }
.meta { font-size: .8rem; color: #888; }
.note { border-left: 4px solid #ffb300; padding-left: .75rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{.Role}} {{.Identity}}{{if .Mode}}, {{.Mode}} mode{{end}}. Exported {{.ExportedAt}}.</p>
{{- if .Note}}
<section class="note">
<h2>Discharge note{{if .NoteOwner}} ({{.NoteOwner}}){{end}}</h2>
{{.Note}}
</section>
{{- end}}
{{- range .Messages}}
<div class="msg {{.Class}}">
<div class="meta">{{.Label}} &middot; {{.Time}}</div>
{{.Body}}
</div>
{{- end}}
</body>
</html>
`))

// Render writes doc as an HTML page.
func Render(w io.Writer, doc Document, conv *Converter) error {
	if conv == nil {
		conv = NewConverter()
	}
	if doc.ExportedAt.IsZero() {
		doc.ExportedAt = time.Now()
	}

	p := page{
		Title:      "Conversation with " + peerTitle(doc),
		Role:       doc.Role,
		Identity:   doc.Identity,
		Mode:       doc.Mode,
		ExportedAt: doc.ExportedAt.Format(time.RFC1123),
	}
	if doc.Note != nil {
		p.Note = template.HTML(conv.ConvertToSafeHTML(doc.Note.Text))
		p.NoteOwner = doc.Note.Owner
	}
	for _, m := range doc.Messages {
		p.Messages = append(p.Messages, renderedMessage{
			Class: string(m.Sender),
			Label: m.Label,
			Time:  m.At.Format("15:04:05"),
			Body:  template.HTML(conv.ConvertToSafeHTML(m.Text)),
		})
	}

	return pageTemplate.Execute(w, p)
}

func peerTitle(doc Document) string {
	for _, m := range doc.Messages {
		if m.Sender == conversation.SenderPeer {
			return m.Label
		}
	}
	if doc.Role == "expert" {
		return "patient"
	}
	if doc.Mode == "automated" {
		return "assistant"
	}
	return "expert"
}

// WriteFile writes doc to path, creating parent directories. A ".json"
// path gets the raw document; anything else gets the HTML page.
func WriteFile(path string, doc Document) error {
	if doc.ExportedAt.IsZero() {
		doc.ExportedAt = time.Now()
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := fileutil.WriteJSONAtomic(path, doc, 0644); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := Render(&buf, doc, nil); err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}
	if err := fileutil.WriteAtomic(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
