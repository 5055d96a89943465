// Package protocol implements the JSON message envelope carried over the
// streaming WebSocket connection: inbound event decoding, base64 audio payload
// extraction, and outbound notification construction.
package protocol
