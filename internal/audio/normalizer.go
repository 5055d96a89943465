package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Normalizer converts arbitrary container audio into the canonical mono
// fixed-rate WAV representation. Failures are per-call and recoverable; a
// normalizer must tolerate garbage input without affecting later calls.
type Normalizer interface {
	Normalize(ctx context.Context, src []byte, hint string) ([]byte, error)
}

// FFmpegNormalizer shells out to ffmpeg for format conversion
type FFmpegNormalizer struct {
	path       string
	sampleRate int
	timeout    time.Duration
}

// NewFFmpegNormalizer creates a normalizer using the given ffmpeg binary
func NewFFmpegNormalizer(ffmpegPath string, sampleRate int, timeout time.Duration) *FFmpegNormalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &FFmpegNormalizer{
		path:       ffmpegPath,
		sampleRate: sampleRate,
		timeout:    timeout,
	}
}

// Normalize converts src to canonical mono PCM WAV. The hint, when present,
// becomes the input file extension so ffmpeg can pick a demuxer faster;
// detection still works without it.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, src []byte, hint string) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("cannot normalize empty input")
	}

	dir, err := os.MkdirTemp("", "vc_norm_")
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion directory: %w", err)
	}
	defer os.RemoveAll(dir)

	inName := "input"
	if hint != "" {
		inName += "." + strings.TrimPrefix(hint, ".")
	}
	inPath := filepath.Join(dir, inName)
	outPath := filepath.Join(dir, "output.wav")

	if err := os.WriteFile(inPath, src, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write conversion input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	// ffmpeg -y -i input -ac 1 -ar <rate> -f wav output.wav
	cmd := exec.CommandContext(ctx, n.path,
		"-y", "-i", inPath,
		"-ac", "1", "-ar", strconv.Itoa(n.sampleRate),
		"-f", "wav",
		outPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		detail := strings.TrimSpace(string(out))
		if len(detail) > 400 {
			detail = detail[:400]
		}
		return nil, fmt.Errorf("ffmpeg conversion failed: %w: %s", err, detail)
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversion output: %w", err)
	}

	if err := ValidateWAV(wav); err != nil {
		return nil, fmt.Errorf("ffmpeg produced invalid WAV: %w", err)
	}

	return wav, nil
}

// PCMNormalizer wraps already-canonical raw PCM bytes in a WAV container.
// Used for the continuous raw-buffer path, which never needs conversion.
type PCMNormalizer struct {
	sampleRate int
}

// NewPCMNormalizer creates a normalizer for canonical-rate raw PCM input
func NewPCMNormalizer(sampleRate int) *PCMNormalizer {
	return &PCMNormalizer{sampleRate: sampleRate}
}

// Normalize wraps raw little-endian PCM-16 bytes into a WAV container. The
// hint is ignored; the input is raw samples by contract.
func (n *PCMNormalizer) Normalize(_ context.Context, src []byte, _ string) ([]byte, error) {
	return EncodeWAVBytes(src, n.sampleRate)
}
