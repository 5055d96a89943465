// Package session provides streaming session state, the single-flight
// transcription scheduler, and the registry mapping connection identities to
// owned sessions with explicit create/teardown lifecycle.
package session
