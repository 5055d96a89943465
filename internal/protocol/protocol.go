package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Message type constants for the streaming protocol
const (
	// Inbound event types
	TypeSessionStart = "session_start"
	TypeAudioChunk   = "audio_chunk"
	TypePCMChunk     = "pcm_chunk"
	TypeSessionEnd   = "session_end"

	// Outbound notification types
	TypeTranscription = "transcription"
	TypeSessionStatus = "session_status"

	// Session status values
	StatusStarted = "started"
	StatusEnded   = "ended"
)

// Message is the envelope for every frame on the streaming connection.
// The payload shape depends on Type; inbound payloads are decoded lazily
// so a malformed data field only fails the message that carries it.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ChunkPayload is the data field of audio_chunk and pcm_chunk events
type ChunkPayload struct {
	Chunk string `json:"chunk"` // base64-encoded audio bytes
}

// TranscriptionPayload is the data field of transcription notifications
type TranscriptionPayload struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Partial    bool    `json:"partial,omitempty"`
}

// StatusPayload is the data field of session_status notifications
type StatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Decode parses a raw inbound frame into a Message
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type field")
	}

	if !IsValidInboundType(msg.Type) {
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}

	return &msg, nil
}

// ChunkBytes extracts and decodes the base64 audio payload of an
// audio_chunk or pcm_chunk message
func (m *Message) ChunkBytes() ([]byte, error) {
	if len(m.Data) == 0 {
		return nil, fmt.Errorf("%s message missing data field", m.Type)
	}

	var payload ChunkPayload
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", m.Type, err)
	}

	if payload.Chunk == "" {
		return nil, fmt.Errorf("%s payload missing chunk field", m.Type)
	}

	chunk, err := base64.StdEncoding.DecodeString(payload.Chunk)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chunk base64: %w", err)
	}

	return chunk, nil
}

// NewTranscription builds an outbound transcription notification
func NewTranscription(text string, confidence float64, partial bool) Message {
	data, _ := json.Marshal(TranscriptionPayload{
		Text:       text,
		Confidence: confidence,
		Partial:    partial,
	})
	return Message{Type: TypeTranscription, Data: data}
}

// NewSessionStatus builds an outbound session_status notification
func NewSessionStatus(status, message string) Message {
	data, _ := json.Marshal(StatusPayload{
		Status:  status,
		Message: message,
	})
	return Message{Type: TypeSessionStatus, Data: data}
}

// NewAudioChunk builds an inbound audio-bearing message from raw bytes.
// Used by clients and tests; the server only decodes these.
func NewAudioChunk(msgType string, chunk []byte) Message {
	data, _ := json.Marshal(ChunkPayload{
		Chunk: base64.StdEncoding.EncodeToString(chunk),
	})
	return Message{Type: msgType, Data: data}
}

// IsValidInboundType reports whether the type is a recognized inbound event
func IsValidInboundType(msgType string) bool {
	switch msgType {
	case TypeSessionStart, TypeAudioChunk, TypePCMChunk, TypeSessionEnd:
		return true
	}
	return false
}

// IsAudioBearing reports whether the message type carries audio data
func IsAudioBearing(msgType string) bool {
	return msgType == TypeAudioChunk || msgType == TypePCMChunk
}
