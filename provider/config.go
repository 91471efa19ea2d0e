package provider

import (
	"errors"
	"fmt"
	"time"
)

// BreakerSettings configures a provider's circuit breaker.
type BreakerSettings struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// RateLimitSettings configures a provider's token bucket.
type RateLimitSettings struct {
	RequestsPerWindow int
	Window            time.Duration
	QueueEnabled      bool
	MaxQueueSize      int
}

// RetrySettings configures a provider's retry behavior.
type RetrySettings struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Backoff     string // "exponential", "linear", or "fixed"
	Jitter      bool
}

// Config describes a single speech-to-text provider. The zero values of the
// nested settings mean "use defaults" at guard construction time.
type Config struct {
	// ID uniquely names the provider, e.g. "whisper" or "deepgram".
	ID string

	// Enabled providers participate in selection; disabled ones are only
	// usable through fallback from themselves to others.
	Enabled bool

	// CredentialRef is an opaque reference resolved through the secret
	// package, e.g. "secretref:env:DEEPGRAM_API_KEY" or "${WHISPER_KEY}".
	// Empty means the provider needs no credential.
	CredentialRef string

	// Model is the provider-side model identifier.
	Model string

	// MaxConcurrency caps in-flight calls. Zero disables the cap.
	MaxConcurrency int

	// Timeout bounds a single attempt. Zero disables the deadline.
	Timeout time.Duration

	// CostPerRequest is the nominal cost recorded when the caller does
	// not report one, used by cost-optimized selection.
	CostPerRequest float64

	Breaker   BreakerSettings
	RateLimit RateLimitSettings
	Retry     RetrySettings
}

var validBackoffs = map[string]bool{
	"":            true, // defaults to exponential
	"exponential": true,
	"linear":      true,
	"fixed":       true,
}

// Validate checks the configuration for a single provider.
func (c *Config) Validate() error {
	if c.ID == "" {
		return errors.New("provider id is required")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("provider %q: max concurrency must not be negative", c.ID)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("provider %q: timeout must not be negative", c.ID)
	}
	if c.RateLimit.RequestsPerWindow < 0 {
		return fmt.Errorf("provider %q: requests per window must not be negative", c.ID)
	}
	if c.RateLimit.MaxQueueSize < 0 {
		return fmt.Errorf("provider %q: max queue size must not be negative", c.ID)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("provider %q: max attempts must not be negative", c.ID)
	}
	if !validBackoffs[c.Retry.Backoff] {
		return fmt.Errorf("provider %q: unknown backoff strategy %q", c.ID, c.Retry.Backoff)
	}
	return nil
}

// ValidateAll checks a provider set for individual validity and unique IDs.
func ValidateAll(configs []Config) error {
	seen := make(map[string]bool, len(configs))
	for i := range configs {
		if err := configs[i].Validate(); err != nil {
			return err
		}
		if seen[configs[i].ID] {
			return fmt.Errorf("duplicate provider id %q", configs[i].ID)
		}
		seen[configs[i].ID] = true
	}
	return nil
}
