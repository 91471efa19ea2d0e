// Package provider defines the configuration model for speech-to-text
// providers and the unavailability error raised during selection.
//
// A Config carries everything the guard package needs to build the
// provider's protection triple: breaker thresholds, rate limit window,
// retry policy, concurrency cap, and per-attempt timeout. Credential
// material itself never appears here; CredentialRef is an opaque reference
// resolved through the secret package.
package provider
