// Package audio handles per-session audio scratch storage and format handling.
// It implements the segment/raw-PCM store backing a streaming session, the
// canonical WAV codec, and the ffmpeg-based format normalizer.
package audio
