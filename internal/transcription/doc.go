// Package transcription implements the HTTP client for the speech-to-text API.
// It handles multipart form data requests with canonical audio, implements
// retry logic with exponential backoff, and manages rate limiting.
package transcription
