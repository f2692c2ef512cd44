package conversation

import "testing"

func TestClassifyFrame(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKind  FrameKind
		wantText  string
		wantOwner string
	}{
		{
			name:      "numbered discharge note",
			input:     "[Discharge Note #1]:\nPatient stable, discharge in 2 days",
			wantKind:  FrameNote,
			wantText:  "Patient stable, discharge in 2 days",
			wantOwner: "#1",
		},
		{
			name:      "note body keeps later delimiters",
			input:     "[Discharge Note patient3]:\nline one]:\nline two",
			wantKind:  FrameNote,
			wantText:  "line one]:\nline two",
			wantOwner: "patient3",
		},
		{
			name:     "note with empty body",
			input:    "[Discharge Note]:\n",
			wantKind: FrameNote,
			wantText: "",
		},
		{
			name:     "plain chat",
			input:    "Hello, how are you feeling?",
			wantKind: FrameChat,
			wantText: "Hello, how are you feeling?",
		},
		{
			name:     "prefix without delimiter is chat",
			input:    "[Discharge Note is coming soon",
			wantKind: FrameMalformedNote,
			wantText: "[Discharge Note is coming soon",
		},
		{
			name:     "prefix not at start is chat",
			input:    "see [Discharge Note #1]:\nbody",
			wantKind: FrameChat,
			wantText: "see [Discharge Note #1]:\nbody",
		},
		{
			name:     "empty frame",
			input:    "",
			wantKind: FrameChat,
			wantText: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFrame(tt.input)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.NoteOwner != tt.wantOwner {
				t.Errorf("NoteOwner = %q, want %q", got.NoteOwner, tt.wantOwner)
			}
			if got.IsNote() != (tt.wantKind == FrameNote) {
				t.Errorf("IsNote() = %v for kind %v", got.IsNote(), got.Kind)
			}
		})
	}
}

func TestRenderPlain(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"no bullets here", "no bullets here"},
		{"Tips:\n- rest\n- drink water", "Tips:\n  • rest\n  • drink water"},
		{"a - b", "a - b"},
	}
	for _, tt := range tests {
		if got := RenderPlain(tt.input); got != tt.want {
			t.Errorf("RenderPlain(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
