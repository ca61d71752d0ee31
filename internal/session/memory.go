package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nileshdk/bolikhata/internal/namematch"
)

const (
	// turnRingSize bounds the conversation history fed to the extractor.
	turnRingSize = 20

	// customerRingSize bounds the recently-referenced customer ring.
	customerRingSize = 10
)

// Turn is one utterance in the conversation, either side.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
	At   time.Time
}

// customerRef is one entry in the customer ring.
type customerRef struct {
	ID   string
	Name string
}

// Memory is the per-session conversation state: a bounded turn history for
// extraction context and a bounded ring of recently-referenced customers for
// pronoun resolution. Safe for concurrent use; the pipeline and the engine
// touch it from different goroutines.
type Memory struct {
	mu             sync.Mutex
	turns          []Turn
	customers      []customerRef // newest first
	matchThreshold float64
}

// NewMemory creates an empty Memory. matchThreshold is the fuzzy score at
// which two spoken names are treated as the same customer.
func NewMemory(matchThreshold float64) *Memory {
	if matchThreshold <= 0 {
		matchThreshold = 0.85
	}
	return &Memory{matchThreshold: matchThreshold}
}

// AddTurn appends an utterance, evicting the oldest beyond the ring size.
func (m *Memory) AddTurn(role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, Turn{Role: role, Text: text, At: time.Now()})
	if len(m.turns) > turnRingSize {
		m.turns = m.turns[len(m.turns)-turnRingSize:]
	}
}

// Promote records that a command acted on this customer, making it the
// active one. A name that fuzzily matches an existing ring entry collapses
// onto it instead of creating a near-duplicate, so "Ramesh" and "Ramesh ji"
// stay one customer.
func (m *Memory) Promote(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, c := range m.customers {
		if c.ID == id {
			idx = i
			break
		}
		if r, ok := namematch.Match(name, c.Name, m.matchThreshold); ok && r.Score >= m.matchThreshold {
			idx = i
			break
		}
	}
	if idx >= 0 {
		m.customers = append(m.customers[:idx], m.customers[idx+1:]...)
	}
	m.customers = append([]customerRef{{ID: id, Name: name}}, m.customers...)
	if len(m.customers) > customerRingSize {
		m.customers = m.customers[:customerRingSize]
	}
}

// ActiveCustomer returns the most recently referenced customer.
func (m *Memory) ActiveCustomer() (id, name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.customers) == 0 {
		return "", "", false
	}
	return m.customers[0].ID, m.customers[0].Name, true
}

// PreviousCustomer returns the customer referenced before the active one.
func (m *Memory) PreviousCustomer() (id, name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.customers) < 2 {
		return "", "", false
	}
	return m.customers[1].ID, m.customers[1].Name, true
}

// RingNames returns the recently referenced customer names, newest first.
func (m *Memory) RingNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.customers))
	for i, c := range m.customers {
		names[i] = c.Name
	}
	return names
}

// Context renders the conversation state for the extractor prompt: the
// active customer, then the recent turns oldest first. Naming the active
// customer lets the model resolve "unka", "usko" and bare follow-ups.
func (m *Memory) Context() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) == 0 && len(m.customers) == 0 {
		return ""
	}
	var b strings.Builder
	if len(m.customers) > 0 {
		fmt.Fprintf(&b, "Active customer: %s\n", m.customers[0].Name)
	}
	for _, t := range m.turns {
		role := "User"
		if t.Role == "assistant" {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Text)
	}
	return b.String()
}

// Hash digests the recent turns so conversation-scoped cache entries change
// when the context does.
func (m *Memory) Hash() string {
	sum := sha256.Sum256([]byte(m.Context()))
	return hex.EncodeToString(sum[:8])
}
