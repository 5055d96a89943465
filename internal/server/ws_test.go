package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rakeshkurakula/voice-training-app/internal/config"
	"github.com/rakeshkurakula/voice-training-app/internal/metrics"
	"github.com/rakeshkurakula/voice-training-app/internal/protocol"
	"github.com/rakeshkurakula/voice-training-app/internal/session"
)

// promauto registers against the default registry; one Metrics per test binary
var testMetrics = metrics.NewMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubEngine struct {
	text string
}

func (e *stubEngine) Transcribe(_ context.Context, _ string, _ []byte, _ bool) (string, float32, error) {
	return e.text, 0.9, nil
}

type passNormalizer struct{}

func (passNormalizer) Normalize(_ context.Context, src []byte, _ string) ([]byte, error) {
	return src, nil
}

// newTestServer wires a WSServer around a stub engine and exposes its
// WebSocket handler via httptest
func newTestServer(t *testing.T, engine session.Engine) (*WSServer, *session.Registry, *httptest.Server) {
	t.Helper()

	scratch := t.TempDir()
	factory := func(id string, notify session.Notifier) (*session.Session, error) {
		return session.New(id, scratch, engine, passNormalizer{}, passNormalizer{},
			notify, testLogger(), testMetrics, session.Config{
				SampleRate:     16000,
				SegmentTrigger: 4096,
				BufferTrigger:  8192,
				FinalizeWait:   2 * time.Second,
			})
	}
	registry := session.NewRegistry(factory, time.Minute, testLogger(), testMetrics)
	t.Cleanup(func() { registry.Stop() })

	wsServer := NewWSServer(&config.ServerConfig{ReadLimit: 1 << 20}, testLogger(), registry, testMetrics)

	ts := httptest.NewServer(http.HandlerFunc(wsServer.handleWebSocket))
	t.Cleanup(ts.Close)

	return wsServer, registry, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return msg
}

func TestWebSocketSessionFlow(t *testing.T) {
	_, _, ts := newTestServer(t, &stubEngine{text: "hello coach"})
	conn := dial(t, ts)

	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeSessionStart}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != protocol.TypeSessionStatus {
		t.Fatalf("Expected session_status, got %s", msg.Type)
	}
	var status protocol.StatusPayload
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to decode status payload: %v", err)
	}
	if status.Status != protocol.StatusStarted {
		t.Errorf("Expected status '%s', got '%s'", protocol.StatusStarted, status.Status)
	}

	chunk := protocol.NewAudioChunk(protocol.TypeAudioChunk, []byte("short audio payload"))
	if err := conn.WriteJSON(chunk); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeSessionEnd}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	msg = readMessage(t, conn)
	if msg.Type != protocol.TypeTranscription {
		t.Fatalf("Expected transcription, got %s", msg.Type)
	}
	var transcript protocol.TranscriptionPayload
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		t.Fatalf("Failed to decode transcription payload: %v", err)
	}
	if transcript.Text != "hello coach" {
		t.Errorf("Expected 'hello coach', got '%s'", transcript.Text)
	}
	if transcript.Partial {
		t.Error("Final transcription should not carry the partial flag")
	}
	if transcript.Confidence != session.FinalConfidence {
		t.Errorf("Expected confidence %v, got %v", session.FinalConfidence, transcript.Confidence)
	}

	msg = readMessage(t, conn)
	if msg.Type != protocol.TypeSessionStatus {
		t.Fatalf("Expected session_status after final transcript, got %s", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Failed to decode status payload: %v", err)
	}
	if status.Status != protocol.StatusEnded {
		t.Errorf("Expected status '%s', got '%s'", protocol.StatusEnded, status.Status)
	}
}

func TestWebSocketMalformedFrameSurvives(t *testing.T) {
	_, _, ts := newTestServer(t, &stubEngine{text: "still alive"})
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("this is not json")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := conn.WriteJSON(protocol.Message{Type: "bogus_type"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	// Connection stays usable after the garbage
	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeSessionStart}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != protocol.TypeSessionStatus {
		t.Fatalf("Expected session_status after malformed frames, got %s", msg.Type)
	}
}

func TestWebSocketDisconnectRemovesSession(t *testing.T) {
	_, registry, ts := newTestServer(t, &stubEngine{text: "gone"})
	conn := dial(t, ts)

	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeSessionStart}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	readMessage(t, conn) // started status, session exists now

	if registry.Count() != 1 {
		t.Fatalf("Expected 1 session, got %d", registry.Count())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Count() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Session was not removed after disconnect, %d remaining", registry.Count())
}

func TestWebSocketStatistics(t *testing.T) {
	wsServer, _, ts := newTestServer(t, &stubEngine{text: "stats"})
	conn := dial(t, ts)

	if err := conn.WriteJSON(protocol.Message{Type: protocol.TypeSessionStart}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	readMessage(t, conn)

	stats := wsServer.GetStatistics()
	if stats.MessagesReceived == 0 {
		t.Error("Expected received messages to be counted")
	}
	if stats.ActiveConnections != 1 {
		t.Errorf("Expected 1 active connection, got %d", stats.ActiveConnections)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("Expected 1 active session, got %d", stats.ActiveSessions)
	}
}
