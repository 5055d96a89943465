package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestDecodeValidMessages(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
	}{
		{
			name:     "session start",
			raw:      `{"type":"session_start"}`,
			wantType: TypeSessionStart,
		},
		{
			name:     "session start with empty data",
			raw:      `{"type":"session_start","data":{}}`,
			wantType: TypeSessionStart,
		},
		{
			name:     "audio chunk",
			raw:      `{"type":"audio_chunk","data":{"chunk":"AAAA"}}`,
			wantType: TypeAudioChunk,
		},
		{
			name:     "pcm chunk",
			raw:      `{"type":"pcm_chunk","data":{"chunk":"AAAA"}}`,
			wantType: TypePCMChunk,
		},
		{
			name:     "session end",
			raw:      `{"type":"session_end"}`,
			wantType: TypeSessionEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if msg.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, msg.Type)
			}
		})
	}
}

func TestDecodeInvalidMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "not json",
			raw:  `this is not json`,
		},
		{
			name: "missing type",
			raw:  `{"data":{"chunk":"AAAA"}}`,
		},
		{
			name: "empty type",
			raw:  `{"type":""}`,
		},
		{
			name: "unknown type",
			raw:  `{"type":"bogus_event"}`,
		},
		{
			name: "outbound type not accepted inbound",
			raw:  `{"type":"transcription"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); err == nil {
				t.Errorf("Expected error for %q but got none", tt.raw)
			}
		})
	}
}

func TestChunkBytes(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	encoded := base64.StdEncoding.EncodeToString(audio)

	msg, err := Decode([]byte(`{"type":"audio_chunk","data":{"chunk":"` + encoded + `"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	chunk, err := msg.ChunkBytes()
	if err != nil {
		t.Fatalf("ChunkBytes failed: %v", err)
	}

	if len(chunk) != len(audio) {
		t.Fatalf("Expected %d bytes, got %d", len(audio), len(chunk))
	}
	for i := range audio {
		if chunk[i] != audio[i] {
			t.Errorf("Byte %d mismatch: expected 0x%02x, got 0x%02x", i, audio[i], chunk[i])
		}
	}
}

func TestChunkBytesErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "missing data field",
			raw:  `{"type":"audio_chunk"}`,
		},
		{
			name: "data not an object",
			raw:  `{"type":"audio_chunk","data":"AAAA"}`,
		},
		{
			name: "missing chunk field",
			raw:  `{"type":"audio_chunk","data":{"other":"x"}}`,
		},
		{
			name: "invalid base64",
			raw:  `{"type":"pcm_chunk","data":{"chunk":"not-valid-base64!!!"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if _, err := msg.ChunkBytes(); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

func TestNewTranscription(t *testing.T) {
	msg := NewTranscription("hello world", 0.7, true)

	if msg.Type != TypeTranscription {
		t.Errorf("Expected type %s, got %s", TypeTranscription, msg.Type)
	}

	var payload TranscriptionPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}

	if payload.Text != "hello world" {
		t.Errorf("Expected text 'hello world', got '%s'", payload.Text)
	}
	if payload.Confidence != 0.7 {
		t.Errorf("Expected confidence 0.7, got %f", payload.Confidence)
	}
	if !payload.Partial {
		t.Errorf("Expected partial flag set")
	}
}

func TestNewTranscriptionFinalOmitsPartial(t *testing.T) {
	msg := NewTranscription("done", 0.75, false)

	// partial must be absent on final notifications, not false
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if _, present := raw["partial"]; present {
		t.Errorf("Expected partial field to be omitted on final transcription")
	}
}

func TestNewSessionStatus(t *testing.T) {
	msg := NewSessionStatus(StatusStarted, "Session started successfully")

	if msg.Type != TypeSessionStatus {
		t.Errorf("Expected type %s, got %s", TypeSessionStatus, msg.Type)
	}

	var payload StatusPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}

	if payload.Status != StatusStarted {
		t.Errorf("Expected status %s, got %s", StatusStarted, payload.Status)
	}
	if payload.Message != "Session started successfully" {
		t.Errorf("Unexpected message: %s", payload.Message)
	}
}

func TestNewAudioChunkRoundTrip(t *testing.T) {
	audio := []byte("raw pcm samples go here")
	msg := NewAudioChunk(TypePCMChunk, audio)

	encoded, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	chunk, err := decoded.ChunkBytes()
	if err != nil {
		t.Fatalf("ChunkBytes failed: %v", err)
	}

	if string(chunk) != string(audio) {
		t.Errorf("Round trip mismatch: expected %q, got %q", audio, chunk)
	}
}

func TestIsAudioBearing(t *testing.T) {
	if !IsAudioBearing(TypeAudioChunk) {
		t.Errorf("audio_chunk should be audio bearing")
	}
	if !IsAudioBearing(TypePCMChunk) {
		t.Errorf("pcm_chunk should be audio bearing")
	}
	if IsAudioBearing(TypeSessionStart) {
		t.Errorf("session_start should not be audio bearing")
	}
	if IsAudioBearing(TypeSessionEnd) {
		t.Errorf("session_end should not be audio bearing")
	}
}
