package transcript

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inercia/carechat/internal/conversation"
	"github.com/inercia/carechat/internal/fileutil"
)

func TestConverter_Convert(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "bullets become a list",
			input:    "Take care:\n\n- rest\n- drink water",
			contains: []string{"<ul>", "<li>rest</li>", "<li>drink water</li>"},
		},
		{
			name:     "hard wraps",
			input:    "line one\nline two",
			contains: []string{"line one<br"},
		},
		{
			name:     "script stripped",
			input:    "hello <script>alert(1)</script>",
			excludes: []string{"<script>", "alert(1)</script>"},
		},
		{
			name:     "links get nofollow",
			input:    "see https://example.com/care",
			contains: []string{`href="https://example.com/care"`, `rel="nofollow`},
		},
	}

	conv := NewConverter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conv.Convert(tt.input)
			if err != nil {
				t.Fatalf("Convert failed: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("output %q missing %q", got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("output %q contains %q", got, bad)
				}
			}
		})
	}
}

func TestConverter_WithoutSanitization(t *testing.T) {
	conv := NewConverter(WithSanitization(nil))
	got, err := conv.Convert("**bold**")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("output = %q", got)
	}
}

func testDocument() Document {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	return Document{
		Role:     "patient",
		Identity: "patient7",
		Mode:     "automated",
		Messages: []conversation.Message{
			{Seq: 1, Sender: conversation.SenderSelf, Label: "patient", Text: "What can I eat?", At: at},
			{Seq: 2, Sender: conversation.SenderPeer, Label: "assistant", Text: "Try:\n\n- soup\n- rice", At: at.Add(time.Second)},
			{Seq: 3, Sender: conversation.SenderSystem, Label: "system", Text: "Discharge note uploaded successfully.", At: at.Add(2 * time.Second)},
		},
		Note:       &conversation.DocumentNote{Owner: "patient7", Text: "Patient stable <b>ok</b>"},
		ExportedAt: at,
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, testDocument(), nil); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<title>Conversation with assistant</title>",
		"patient patient7, automated mode.",
		`class="msg self"`,
		`class="msg peer"`,
		`class="msg system"`,
		"<li>soup</li>",
		"10:30:01",
		"Discharge note (patient7)",
		"Patient stable",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	// Messages keep their order.
	first := strings.Index(out, "What can I eat?")
	second := strings.Index(out, "soup")
	if first < 0 || second < 0 || first > second {
		t.Error("messages out of order")
	}
}

func TestRender_EscapesHeader(t *testing.T) {
	doc := testDocument()
	doc.Identity = "<img src=x>"
	var buf bytes.Buffer
	if err := Render(&buf, doc, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "<img src=x>") {
		t.Error("identity not escaped")
	}
	if strings.Contains(buf.String(), "<b>ok</b>") {
		t.Error("raw HTML in note passed through")
	}
}

func TestPeerTitle(t *testing.T) {
	tests := []struct {
		doc  Document
		want string
	}{
		{Document{Role: "expert"}, "patient"},
		{Document{Role: "patient", Mode: "automated"}, "assistant"},
		{Document{Role: "patient", Mode: "expert"}, "expert"},
	}
	for _, tt := range tests {
		if got := peerTitle(tt.doc); got != tt.want {
			t.Errorf("peerTitle(%+v) = %q, want %q", tt.doc, got, tt.want)
		}
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "chat.html")
	if err := WriteFile(path, testDocument()); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "<!DOCTYPE html>") {
		t.Errorf("unexpected file content: %.40q", data)
	}
}

func TestWriteFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.JSON")
	want := testDocument()
	if err := WriteFile(path, want); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var got Document
	if err := fileutil.ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Identity != want.Identity || len(got.Messages) != len(want.Messages) {
		t.Errorf("got %+v", got)
	}
	if got.Messages[1].Text != want.Messages[1].Text || got.Messages[1].Sender != conversation.SenderPeer {
		t.Errorf("message = %+v", got.Messages[1])
	}
	if got.Note == nil || got.Note.Owner != "patient7" {
		t.Errorf("note = %+v", got.Note)
	}
}
