package conversation

import "strings"

const (
	// NotePrefix starts every document note frame.
	NotePrefix = "[Discharge Note"
	// NoteDelimiter separates the note header from its body.
	NoteDelimiter = "]:\n"
)

// FrameKind is the result of classifying an inbound frame.
type FrameKind int

const (
	// FrameChat is a plain chat message.
	FrameChat FrameKind = iota
	// FrameNote is a document note.
	FrameNote
	// FrameMalformedNote carries the note prefix but no delimiter. It is
	// delivered as chat.
	FrameMalformedNote
)

// String returns a short name for the kind.
func (k FrameKind) String() string {
	switch k {
	case FrameChat:
		return "chat"
	case FrameNote:
		return "note"
	case FrameMalformedNote:
		return "malformed_note"
	default:
		return "unknown"
	}
}

// Frame is a classified inbound frame.
type Frame struct {
	Kind FrameKind
	// Text is the chat text, or the note body for FrameNote.
	Text string
	// NoteOwner is the header tag of a note, e.g. "#1" for "[Discharge Note #1]:\n".
	NoteOwner string
}

// IsNote reports whether the frame should update the document note slot.
func (f Frame) IsNote() bool {
	return f.Kind == FrameNote
}

// ClassifyFrame decides whether an inbound frame is a document note or a
// chat message. A frame is a note when it starts with NotePrefix and contains
// NoteDelimiter; the body is everything after the first delimiter.
//
// A chat message that happens to look like a note is classified as a note.
func ClassifyFrame(text string) Frame {
	if !strings.HasPrefix(text, NotePrefix) {
		return Frame{Kind: FrameChat, Text: text}
	}

	header, body, found := strings.Cut(text[len(NotePrefix):], NoteDelimiter)
	if !found {
		return Frame{Kind: FrameMalformedNote, Text: text}
	}
	return Frame{
		Kind:      FrameNote,
		Text:      body,
		NoteOwner: strings.TrimSpace(header),
	}
}
