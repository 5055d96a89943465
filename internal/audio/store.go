package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SegmentStore is the per-session scratch storage for incoming audio. It
// holds two alternative representations of the same speech: an ordered set
// of discrete containerized segment files and a single append-only raw PCM
// file. Which one a session fills depends on the message type the client
// sends; both may coexist.
type SegmentStore struct {
	root    string
	segDir  string
	rawPath string

	mu       sync.Mutex
	rawSize  int64
	segments []Segment
	nextSeq  int
}

// Segment describes one discrete containerized chunk written to disk
type Segment struct {
	Seq  int    `json:"seq"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// NewSegmentStore allocates scratch storage under baseDir. An empty baseDir
// uses the system temp directory.
func NewSegmentStore(baseDir string) (*SegmentStore, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	root, err := os.MkdirTemp(baseDir, "vc_session_")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	segDir := filepath.Join(root, "segs")
	if err := os.Mkdir(segDir, 0o755); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	return &SegmentStore{
		root:    root,
		segDir:  segDir,
		rawPath: filepath.Join(root, "raw.pcm"),
	}, nil
}

// AppendSegment writes a discrete chunk as the next sequence-numbered
// segment file and returns its descriptor
func (s *SegmentStore) AppendSegment(data []byte) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq
	path := filepath.Join(s.segDir, fmt.Sprintf("seg_%06d.bin", seq))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Segment{}, fmt.Errorf("failed to write segment %d: %w", seq, err)
	}

	seg := Segment{Seq: seq, Path: path, Size: int64(len(data))}
	s.segments = append(s.segments, seg)
	s.nextSeq++

	return seg, nil
}

// AppendRaw appends canonical-rate PCM bytes to the raw stream and returns
// the accumulated size
func (s *SegmentStore) AppendRaw(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.rawPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return s.rawSize, fmt.Errorf("failed to open raw buffer: %w", err)
	}

	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	s.rawSize += int64(n)
	if err != nil {
		return s.rawSize, fmt.Errorf("failed to append raw audio: %w", err)
	}

	return s.rawSize, nil
}

// RawSize returns the number of raw PCM bytes accumulated so far
func (s *SegmentStore) RawSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawSize
}

// RawBytes returns the full raw PCM stream accumulated so far
func (s *SegmentStore) RawBytes() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rawSize == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(s.rawPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw buffer: %w", err)
	}
	return data, nil
}

// Segments returns a snapshot of segment descriptors in sequence order
func (s *SegmentStore) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// SegmentBytes reads a single segment's container bytes back from disk
func (s *SegmentStore) SegmentBytes(seg Segment) ([]byte, error) {
	data, err := os.ReadFile(seg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment %d: %w", seg.Seq, err)
	}
	return data, nil
}

// SegmentCount returns the number of segments received so far
func (s *SegmentStore) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// Reset clears all buffered audio and rewinds sequence numbering. Used on
// explicit session start.
func (s *SegmentStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	for _, seg := range s.segments {
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("segment %d: %w", seg.Seq, err))
		}
	}
	s.segments = nil
	s.nextSeq = 0

	if err := os.Remove(s.rawPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("raw buffer: %w", err))
	}
	s.rawSize = 0

	return errors.Join(errs...)
}

// Remove releases all scratch storage. Cleanup is best-effort: the returned
// error is for logging only and callers must not fail teardown on it.
func (s *SegmentStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.segments = nil
	s.nextSeq = 0
	s.rawSize = 0

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to remove scratch directory %s: %w", s.root, err)
	}
	return nil
}

// Dir returns the root scratch directory path
func (s *SegmentStore) Dir() string {
	return s.root
}
