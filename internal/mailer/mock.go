package mailer

import (
	"context"
	"sync"
)

// Recorder is an in-memory Sender for tests.
type Recorder struct {
	mu sync.Mutex

	// Err, when set, fails every send.
	Err error

	Messages []RecordedMessage
}

// RecordedMessage is one captured send.
type RecordedMessage struct {
	To      string
	Subject string
	Body    string
}

var _ Sender = (*Recorder)(nil)

// Send implements Sender.
func (r *Recorder) Send(_ context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Messages = append(r.Messages, RecordedMessage{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns all captured messages.
func (r *Recorder) Sent() []RecordedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedMessage, len(r.Messages))
	copy(out, r.Messages)
	return out
}
