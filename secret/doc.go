// Package secret resolves provider credential references.
//
// Provider configurations never carry credential material directly; they
// carry references like "secretref:env:DEEPGRAM_API_KEY" or "${WHISPER_KEY}"
// that this package resolves at call time. Storage and encryption of the
// underlying values is the host application's concern.
package secret
