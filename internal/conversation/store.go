// Package conversation holds the local, in-memory conversation log for one
// (identity, mode) pair and the classification of inbound frames.
package conversation

import (
	"sync"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	// SenderSelf marks a message typed by the local user (optimistic echo).
	SenderSelf Sender = "self"
	// SenderPeer marks a message received from the remote side.
	SenderPeer Sender = "peer"
	// SenderSystem marks a locally generated notice (upload results, connection loss).
	SenderSystem Sender = "system"
)

// Message is a single entry in the conversation log.
type Message struct {
	// Seq is assigned at append time and strictly increases within a Store.
	Seq int64 `json:"seq"`
	// Sender is the sender class.
	Sender Sender `json:"sender"`
	// Label is the display label ("patient", "expert", "assistant", "system").
	Label string `json:"label"`
	// Text is the message body, verbatim.
	Text string `json:"text"`
	// At is the local time the message was appended.
	At time.Time `json:"at"`
}

// DocumentNote is the most recent discharge note received over the connection.
type DocumentNote struct {
	// Owner is the tag found in the note header (e.g. "#1" or a patient ID).
	Owner      string    `json:"owner,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Store is an append-only ordered log of messages plus a single document
// note slot. A Store is never cleared; callers replace it with a new one.
//
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	lastSeq  int64
	note     *DocumentNote

	// now is overridable in tests.
	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append adds a message and returns it with its assigned sequence number.
func (s *Store) Append(sender Sender, label, text string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeq++
	msg := Message{
		Seq:    s.lastSeq,
		Sender: sender,
		Label:  label,
		Text:   text,
		At:     s.now(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

// SetNote overwrites the document note slot. Notes are never merged.
func (s *Store) SetNote(owner, text string) DocumentNote {
	s.mu.Lock()
	defer s.mu.Unlock()

	note := DocumentNote{Owner: owner, Text: text, ReceivedAt: s.now()}
	s.note = &note
	return note
}

// Note returns a copy of the current document note, if any.
func (s *Store) Note() (DocumentNote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.note == nil {
		return DocumentNote{}, false
	}
	return *s.note, true
}

// Messages returns a copy of the log in append order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Since returns the messages with a sequence number greater than seq.
func (s *Store) Since(seq int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Seq values are dense and start at 1, so the index is seq.
	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(s.messages)) {
		return nil
	}
	out := make([]Message, len(s.messages)-int(seq))
	copy(out, s.messages[seq:])
	return out
}

// Len returns the number of messages in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastSeq returns the sequence number of the last appended message, or 0.
func (s *Store) LastSeq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}
