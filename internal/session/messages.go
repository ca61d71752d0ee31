// Package session owns one operator conversation: the websocket message
// contract, the turn and customer memory, the confirmation gate, and the
// pipeline that walks a final transcript through extraction, execution,
// response generation, and speech.
package session

import (
	"encoding/json"
	"time"
)

// Outbound message types.
const (
	// TypeVoiceStart announces session capabilities right after connect.
	TypeVoiceStart = "voice:start"

	// TypeTranscript carries a partial or final transcript.
	TypeTranscript = "voice:transcript"

	// TypeThinking marks the gap between a final transcript and the intent.
	TypeThinking = "voice:thinking"

	// TypeIntent reports the extracted command before execution.
	TypeIntent = "voice:intent"

	// TypeResponseChunk streams response text as it is generated.
	TypeResponseChunk = "voice:response:chunk"

	// TypeResponse carries the complete response with the execution result.
	TypeResponse = "voice:response"

	// TypeTTSStream carries one synthesized audio chunk.
	TypeTTSStream = "voice:tts-stream"

	// TypeConfirmNeeded asks the operator to confirm a risky or uncertain
	// command before it runs.
	TypeConfirmNeeded = "voice:confirm_needed"

	// TypeLanguageChanged acknowledges a language switch.
	TypeLanguageChanged = "voice:language_changed"

	// TypeRecordingStarted and TypeRecordingStopped bracket microphone state.
	TypeRecordingStarted = "recording:started"
	TypeRecordingStopped = "recording:stopped"

	// TypeError reports protocol-level failures. Business failures travel
	// inside TypeResponse, never here.
	TypeError = "error"
)

// Inbound message types. TypeVoiceStart and TypeTranscript double as
// inbound: the client re-negotiates capabilities with voice:start and
// injects text with voice:transcript.
const (
	// TypeVoiceFinal injects a final transcript without audio, bypassing
	// STT entirely.
	TypeVoiceFinal = "voice:final"

	// TypeVoiceText is a legacy alias for TypeVoiceFinal kept for older
	// clients.
	TypeVoiceText = "voice:text"

	// TypeVoiceStop asks the server to stop the current STT stream.
	TypeVoiceStop = "voice:stop"

	// TypeRecordingStart and TypeRecordingStop open and close the STT
	// stream; the server echoes recording:started/stopped.
	TypeRecordingStart = "recording:start"
	TypeRecordingStop  = "recording:stop"
)

// Message is the JSON envelope for every control frame. Audio travels as
// binary websocket frames and never uses this envelope.
type Message struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// New builds an outbound message with the current timestamp in
// milliseconds.
func New(msgType string, data map[string]any) Message {
	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode renders the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an inbound control frame.
func Decode(raw []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(raw, &m)
	return m, err
}

// Text extracts a string field from the message data.
func (m Message) Text(key string) string {
	if m.Data == nil {
		return ""
	}
	s, _ := m.Data[key].(string)
	return s
}
