// Package logger keeps a bounded in-memory journal of transaction outcomes
// for the API. Process logging goes through the standard log package.
package logger

import (
	"sync"
	"time"

	"stryd.mini/ledger/internal/types"
)

// Message is a single journal entry. Event is set for committed state
// changes; rejections carry only Text and the result Code.
type Message struct {
	Timestamp time.Time             `json:"timestamp"`
	Text      string                `json:"text"`
	Level     string                `json:"level"` // info, warning, error
	Code      uint32                `json:"code,omitempty"`
	Event     *types.ChallengeEvent `json:"event,omitempty"`
}

// Logger manages in-memory journal entries
type Logger struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
}

// New creates a journal that keeps the last maxSize entries.
func New(maxSize int) *Logger {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Logger{
		messages: make([]Message, 0, maxSize),
		maxSize:  maxSize,
	}
}

func (l *Logger) append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	l.messages = append(l.messages, msg)

	// Keep only the last maxSize messages
	if len(l.messages) > l.maxSize {
		l.messages = l.messages[len(l.messages)-l.maxSize:]
	}
}

// Log adds a new message to the journal
func (l *Logger) Log(level, text string) {
	l.append(Message{Text: text, Level: level})
}

// Info logs an info-level message
func (l *Logger) Info(text string) {
	l.Log("info", text)
}

// Warning logs a warning-level message
func (l *Logger) Warning(text string) {
	l.Log("warning", text)
}

// Error logs an error-level message
func (l *Logger) Error(text string) {
	l.Log("error", text)
}

// Rejected records a transaction that was refused with a non-zero code.
func (l *Logger) Rejected(code uint32, text string) {
	l.append(Message{Text: text, Level: "warning", Code: code})
}

// Committed records a state change that became part of a block.
func (l *Logger) Committed(ev types.ChallengeEvent) {
	e := ev
	l.append(Message{Timestamp: ev.Time, Text: ev.Type + " " + ev.Address.String(), Level: "info", Event: &e})
}

// GetRecent returns the most recent n messages (newest first)
func (l *Logger) GetRecent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n < 0 || n > len(l.messages) {
		n = len(l.messages)
	}

	result := make([]Message, n)
	for i := 0; i < n; i++ {
		result[i] = l.messages[len(l.messages)-1-i]
	}

	return result
}

// GetAll returns all messages (newest first)
func (l *Logger) GetAll() []Message {
	return l.GetRecent(-1)
}

// Events returns up to n committed events, newest first.
func (l *Logger) Events(n int) []types.ChallengeEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.ChallengeEvent
	for i := len(l.messages) - 1; i >= 0 && (n < 0 || len(out) < n); i-- {
		if ev := l.messages[i].Event; ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}
