package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rakeshkurakula/voice-training-app/internal/audio"
	"github.com/rakeshkurakula/voice-training-app/internal/metrics"
	"github.com/rakeshkurakula/voice-training-app/internal/protocol"
)

// Emitted confidence scores. Partial and final results carry fixed policy
// values; empty or failed sessions report zero.
const (
	PartialConfidence = 0.7
	FinalConfidence   = 0.75
)

// failedTranscriptText is sent when the final transcription pass fails and
// no text was accumulated earlier in the session.
const failedTranscriptText = "[transcription failed]"

// State describes the session lifecycle
type State int

const (
	StateIdle State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Engine produces text from a normalized WAV payload
type Engine interface {
	Transcribe(ctx context.Context, sessionID string, wav []byte, partial bool) (string, float32, error)
}

// Notifier delivers outbound messages to the session's client
type Notifier func(msg protocol.Message)

// Config contains per-session processing parameters
type Config struct {
	SampleRate     int
	SegmentTrigger int64
	BufferTrigger  int64
	FinalizeWait   time.Duration
}

// Session holds the state of one live transcription session: its scratch
// audio storage, the aggregated transcript, and the single-flight scheduler
// gating transcription requests.
type Session struct {
	ID        string
	StartTime time.Time

	store  *audio.SegmentStore
	sched  *Scheduler
	engine Engine

	segmentNorm audio.Normalizer // encoded segments (webm/ogg/etc)
	rawNorm     audio.Normalizer // raw PCM frames

	notify  Notifier
	logger  *slog.Logger
	metrics *metrics.Metrics
	config  Config

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	accumulated  string
	pending      []audio.Segment // segments not yet transcribed
	pendingBytes int64

	partialsSent   uint64
	failedRequests uint64
}

// Info represents session state for monitoring and APIs
type Info struct {
	ID               string        `json:"id"`
	State            string        `json:"state"`
	StartTime        time.Time     `json:"start_time"`
	LastActivity     time.Time     `json:"last_activity"`
	Duration         time.Duration `json:"duration"`
	SegmentCount     int           `json:"segment_count"`
	RawBytes         int64         `json:"raw_bytes"`
	TranscriptLength int           `json:"transcript_length"`
	PartialsSent     uint64        `json:"partials_sent"`
	FailedRequests   uint64        `json:"failed_requests"`
}

// New creates a session with a fresh scratch directory under scratchDir
func New(id, scratchDir string, engine Engine, segmentNorm, rawNorm audio.Normalizer,
	notify Notifier, logger *slog.Logger, m *metrics.Metrics, config Config) (*Session, error) {

	store, err := audio.NewSegmentStore(scratchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment store: %w", err)
	}

	now := time.Now()
	return &Session{
		ID:           id,
		StartTime:    now,
		store:        store,
		sched:        NewScheduler(),
		engine:       engine,
		segmentNorm:  segmentNorm,
		rawNorm:      rawNorm,
		notify:       notify,
		logger:       logger.With(slog.String("session_id", id)),
		metrics:      m,
		config:       config,
		state:        StateIdle,
		lastActivity: now,
	}, nil
}

// HandleMessage dispatches one inbound client message. Malformed payloads
// are logged and dropped; the session stays usable.
func (s *Session) HandleMessage(ctx context.Context, msg *protocol.Message) {
	s.touch()

	switch msg.Type {
	case protocol.TypeSessionStart:
		s.Start()

	case protocol.TypeAudioChunk:
		data, err := msg.ChunkBytes()
		if err != nil {
			s.logger.Warn("Dropping malformed audio chunk", slog.String("error", err.Error()))
			s.metrics.RecordDecodeError()
			return
		}
		s.AppendSegment(ctx, data)

	case protocol.TypePCMChunk:
		data, err := msg.ChunkBytes()
		if err != nil {
			s.logger.Warn("Dropping malformed PCM chunk", slog.String("error", err.Error()))
			s.metrics.RecordDecodeError()
			return
		}
		s.AppendRaw(ctx, data)

	case protocol.TypeSessionEnd:
		s.End(ctx)

	default:
		s.logger.Warn("Dropping message with unknown type", slog.String("type", msg.Type))
		s.metrics.RecordDecodeError()
	}
}

// Start activates the session and acknowledges it to the client. Any audio
// and text accumulated so far is discarded and sequence numbering rewinds,
// so a client may reuse its connection for a fresh recording.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		s.logger.Warn("Ignoring session_start on ended session")
		return
	}
	restarted := s.state == StateActive
	s.state = StateActive
	s.accumulated = ""
	s.pending = nil
	s.pendingBytes = 0
	s.mu.Unlock()

	if err := s.store.Reset(); err != nil {
		s.logger.Warn("Failed to reset scratch storage", slog.String("error", err.Error()))
	}

	if restarted {
		s.logger.Info("Session restarted, buffers cleared")
	} else {
		s.logger.Info("Session started")
	}
	s.notify(protocol.NewSessionStatus(protocol.StatusStarted, ""))
}

// activateForAudio admits one audio-bearing message. A client may stream
// without an explicit session_start; the first audio frame activates the
// session. Audio after session_end is dropped.
func (s *Session) activateForAudio(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateEnded:
		s.logger.Warn("Dropping "+kind, slog.String("state", s.state.String()))
		return false
	case StateIdle:
		s.state = StateActive
		s.logger.Info("Session activated by first audio frame")
	}
	return true
}

// AppendSegment buffers one encoded audio segment. When the bytes pending
// transcription exceed the segment trigger and no transcription is in
// flight, a partial pass starts in the background.
func (s *Session) AppendSegment(ctx context.Context, data []byte) {
	if !s.activateForAudio("audio chunk") {
		return
	}

	seg, err := s.store.AppendSegment(data)
	if err != nil {
		s.logger.Error("Failed to buffer audio segment", slog.String("error", err.Error()))
		return
	}
	s.metrics.RecordSegmentBuffered(len(data))

	s.mu.Lock()
	s.pending = append(s.pending, seg)
	s.pendingBytes += seg.Size
	shouldTrigger := s.pendingBytes > s.config.SegmentTrigger
	s.mu.Unlock()

	if !shouldTrigger {
		return
	}

	if !s.sched.TryAcquire() {
		s.metrics.RecordTranscriptionSkip()
		s.logger.Debug("Skipping partial transcription, one already in flight")
		return
	}

	// Hand the pending segments to the background pass
	s.mu.Lock()
	segs := s.pending
	s.pending = nil
	s.pendingBytes = 0
	s.mu.Unlock()

	go s.transcribeSegments(ctx, segs, true)
}

// AppendRaw buffers raw PCM frames. When the accumulated buffer exceeds the
// buffer trigger and no transcription is in flight, the whole buffer is
// re-transcribed in the background and the running transcript replaced.
func (s *Session) AppendRaw(ctx context.Context, data []byte) {
	if !s.activateForAudio("PCM chunk") {
		return
	}

	size, err := s.store.AppendRaw(data)
	if err != nil {
		s.logger.Error("Failed to buffer PCM data", slog.String("error", err.Error()))
		return
	}
	s.metrics.RecordAudioBytes(len(data))

	if size <= s.config.BufferTrigger {
		return
	}

	if !s.sched.TryAcquire() {
		s.metrics.RecordTranscriptionSkip()
		s.logger.Debug("Skipping partial transcription, one already in flight")
		return
	}

	go s.transcribeBuffer(ctx, true)
}

// End finalizes the session: waits a bounded time for any in-flight
// transcription, runs a final pass over the remaining audio, emits the final
// transcript and the ended status, and releases the scratch storage.
// A second End is a no-op.
func (s *Session) End(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	segs := s.pending
	s.pending = nil
	s.pendingBytes = 0
	s.mu.Unlock()

	acquired := s.sched.AcquireWait(ctx, s.config.FinalizeWait)
	if !acquired {
		s.logger.Warn("Finalizing with a transcription still in flight",
			slog.Duration("waited", s.config.FinalizeWait))
	}

	text, confidence := s.finalTranscript(ctx, segs)

	s.notify(protocol.NewTranscription(text, confidence, false))
	s.notify(protocol.NewSessionStatus(protocol.StatusEnded, ""))

	if acquired {
		s.sched.Release()
	}

	if err := s.store.Remove(); err != nil {
		s.logger.Warn("Failed to remove scratch directory", slog.String("error", err.Error()))
	}

	s.logger.Info("Session ended",
		slog.Duration("duration", time.Since(s.StartTime)),
		slog.Int("transcript_length", len(text)),
	)
}

// Teardown releases session resources without notifying the client. Used
// when the connection is already gone or the session expired idle. An
// in-flight transcription is not awaited; its result is discarded.
func (s *Session) Teardown() {
	s.mu.Lock()
	s.state = StateEnded
	s.pending = nil
	s.pendingBytes = 0
	s.mu.Unlock()

	if s.sched.InFlight() {
		s.logger.Warn("Tearing down with a transcription still in flight")
	}

	if err := s.store.Remove(); err != nil {
		s.logger.Warn("Failed to remove scratch directory", slog.String("error", err.Error()))
	}
}

// finalTranscript runs the final transcription pass and returns the text and
// confidence to emit. A non-empty raw PCM buffer takes precedence over
// buffered segments when the client mixed both representations.
func (s *Session) finalTranscript(ctx context.Context, segs []audio.Segment) (string, float64) {
	raw, err := s.store.RawBytes()
	if err != nil {
		s.recordFailure("raw buffer read failed", err)
		return s.fallbackTranscript()
	}
	if len(raw) > 0 {
		return s.finalizeRaw(ctx, raw)
	}
	return s.finalizeSegments(ctx, segs)
}

// finalizeRaw transcribes the whole raw PCM buffer in one pass. The result
// replaces any earlier partial text. Failures fall back to the accumulated
// text, or a placeholder when there is none, both at zero confidence.
func (s *Session) finalizeRaw(ctx context.Context, raw []byte) (string, float64) {
	wav, err := s.rawNorm.Normalize(ctx, raw, "")
	if err != nil {
		s.recordFailure("final PCM normalization failed", err)
		return s.fallbackTranscript()
	}

	start := time.Now()
	s.metrics.RecordTranscriptionRequest()
	text, engineConf, err := s.engine.Transcribe(ctx, s.ID, wav, false)
	if err != nil {
		s.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		s.recordFailure("final transcription failed", err)
		return s.fallbackTranscript()
	}
	s.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	s.logger.Debug("Final transcription completed",
		slog.Float64("engine_confidence", float64(engineConf)),
		slog.Duration("took", time.Since(start)),
	)

	if text == "" {
		return "", 0
	}
	return text, FinalConfidence
}

// finalizeSegments transcribes each segment not yet covered by a partial
// pass, one at a time in sequence order, and joins the results onto the
// accumulated text. A failing segment loses only its own text.
func (s *Session) finalizeSegments(ctx context.Context, segs []audio.Segment) (string, float64) {
	s.mu.Lock()
	final := s.accumulated
	s.mu.Unlock()

	failed := 0
	for _, seg := range segs {
		text, err := s.transcribeSegment(ctx, seg)
		if err != nil {
			failed++
			s.recordFailure(fmt.Sprintf("skipping segment %d in final pass", seg.Seq), err)
			continue
		}
		final = joinTranscript(final, text)
	}

	if final == "" {
		if failed > 0 {
			return failedTranscriptText, 0
		}
		return "", 0
	}
	return final, FinalConfidence
}

// transcribeSegment converts and transcribes a single stored segment
func (s *Session) transcribeSegment(ctx context.Context, seg audio.Segment) (string, error) {
	data, err := s.store.SegmentBytes(seg)
	if err != nil {
		return "", err
	}
	wav, err := s.segmentNorm.Normalize(ctx, data, "webm")
	if err != nil {
		return "", err
	}

	start := time.Now()
	s.metrics.RecordTranscriptionRequest()
	text, _, err := s.engine.Transcribe(ctx, s.ID, wav, false)
	if err != nil {
		s.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		return "", err
	}
	s.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())
	return text, nil
}

// fallbackTranscript is what a failed final pass emits
func (s *Session) fallbackTranscript() (string, float64) {
	s.mu.Lock()
	accumulated := s.accumulated
	s.mu.Unlock()

	if accumulated != "" {
		return accumulated, 0
	}
	return failedTranscriptText, 0
}

// transcribeSegments runs a partial pass over segs and appends the result to
// the running transcript. Failures are logged; the client is not notified.
func (s *Session) transcribeSegments(ctx context.Context, segs []audio.Segment, partial bool) {
	defer s.sched.Release()

	wav, err := s.normalizeSegments(ctx, segs)
	if err != nil {
		s.recordFailure("segment normalization failed", err)
		return
	}

	start := time.Now()
	s.metrics.RecordTranscriptionRequest()
	text, engineConf, err := s.engine.Transcribe(ctx, s.ID, wav, partial)
	if err != nil {
		s.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		s.recordFailure("partial transcription failed", err)
		return
	}
	s.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	s.mu.Lock()
	s.accumulated = joinTranscript(s.accumulated, text)
	emitted := s.accumulated
	ended := s.state == StateEnded
	s.partialsSent++
	s.mu.Unlock()

	s.logger.Debug("Partial transcription completed",
		slog.Int("segments", len(segs)),
		slog.Float64("engine_confidence", float64(engineConf)),
		slog.Duration("took", time.Since(start)),
	)

	if !ended {
		s.notify(protocol.NewTranscription(emitted, PartialConfidence, true))
	}
}

// transcribeBuffer runs a partial pass over the whole raw buffer and
// replaces the running transcript with the result.
func (s *Session) transcribeBuffer(ctx context.Context, partial bool) {
	defer s.sched.Release()

	raw, err := s.store.RawBytes()
	if err != nil {
		s.recordFailure("raw buffer read failed", err)
		return
	}
	if len(raw) == 0 {
		return
	}

	wav, err := s.rawNorm.Normalize(ctx, raw, "")
	if err != nil {
		s.recordFailure("PCM normalization failed", err)
		return
	}

	start := time.Now()
	s.metrics.RecordTranscriptionRequest()
	text, engineConf, err := s.engine.Transcribe(ctx, s.ID, wav, partial)
	if err != nil {
		s.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		s.recordFailure("partial transcription failed", err)
		return
	}
	s.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	s.mu.Lock()
	s.accumulated = text
	ended := s.state == StateEnded
	s.partialsSent++
	s.mu.Unlock()

	s.logger.Debug("Buffer transcription completed",
		slog.Int("buffer_bytes", len(raw)),
		slog.Float64("engine_confidence", float64(engineConf)),
		slog.Duration("took", time.Since(start)),
	)

	if !ended {
		s.notify(protocol.NewTranscription(text, PartialConfidence, true))
	}
}

// normalizeSegments concatenates the segment payloads and converts them to
// mono 16 kHz WAV.
func (s *Session) normalizeSegments(ctx context.Context, segs []audio.Segment) ([]byte, error) {
	var combined []byte
	for _, seg := range segs {
		data, err := s.store.SegmentBytes(seg)
		if err != nil {
			return nil, err
		}
		combined = append(combined, data...)
	}
	return s.segmentNorm.Normalize(ctx, combined, "webm")
}

func (s *Session) recordFailure(msg string, err error) {
	s.mu.Lock()
	s.failedRequests++
	s.mu.Unlock()
	s.logger.Error(msg, slog.String("error", err.Error()))
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the most recent client message
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the text accumulated so far
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated
}

// GetInfo returns a snapshot of session state for monitoring
func (s *Session) GetInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		ID:               s.ID,
		State:            s.state.String(),
		StartTime:        s.StartTime,
		LastActivity:     s.lastActivity,
		Duration:         time.Since(s.StartTime),
		SegmentCount:     s.store.SegmentCount(),
		RawBytes:         s.store.RawSize(),
		TranscriptLength: len(s.accumulated),
		PartialsSent:     s.partialsSent,
		FailedRequests:   s.failedRequests,
	}
}

// joinTranscript appends next to acc with a single separating space
func joinTranscript(acc, next string) string {
	if acc == "" {
		return next
	}
	if next == "" {
		return acc
	}
	return acc + " " + next
}
