package message

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrOutOfRange is returned when a positional index does not exist in the
// store.
var ErrOutOfRange = errors.New("index out of message store bounds")

// Message is one delivered item in an account's inbox. Recipient always
// equals the owning account's name at store time. A message has no stable
// identity beyond its current position: deleting an earlier message shifts
// every later one down.
type Message struct {
	Sender    string
	Recipient string
	Timestamp time.Time
	Body      string
}

// New builds a message stamped with the current time.
func New(sender, recipient, body string) Message {
	return Message{
		Sender:    sender,
		Recipient: recipient,
		Timestamp: time.Now(),
		Body:      body,
	}
}

// Store is the ordered inbox of a single account. All operations are
// mutually exclusive on one instance; stores of different accounts share
// nothing and never block each other.
type Store struct {
	mu       sync.Mutex
	messages []Message
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a message at the end of the inbox.
func (s *Store) Append(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return true
}

// RemoveAt removes and returns the message at index. Every later message
// shifts down one position.
func (s *Store) RemoveAt(index int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return Message{}, ErrOutOfRange
	}
	msg := s.messages[index]
	s.messages = append(s.messages[:index], s.messages[index+1:]...)
	return msg, nil
}

// RemoveByValue removes the first message structurally equal to msg.
func (s *Store) RemoveByValue(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m == msg {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the store. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Get returns the message at index without mutating the store.
func (s *Store) Get(index int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return Message{}, ErrOutOfRange
	}
	return s.messages[index], nil
}

// List returns a snapshot of the current contents in delivery order.
func (s *Store) List() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the current number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Render produces the client-facing inbox listing. The layout is part of the
// wire contract for READ responses.
func (s *Store) Render() string {
	msgs := s.List()

	var sb strings.Builder
	sb.WriteString("________________________\n")
	if len(msgs) == 0 {
		sb.WriteString("***no messages****\n")
		return sb.String()
	}
	for i, msg := range msgs {
		fmt.Fprintf(&sb, "Message Id: %d\n", i)
		fmt.Fprintf(&sb, "Recipient: %s\n", msg.Recipient)
		fmt.Fprintf(&sb, "Sender: %s\n", msg.Sender)
		fmt.Fprintf(&sb, "Date: %s\n", msg.Timestamp.Format("2006-01-02"))
		fmt.Fprintf(&sb, "Message: %s\n", msg.Body)
		sb.WriteString("-------------------------\n")
	}
	return sb.String()
}
