package provider

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "minimal valid",
			config: Config{ID: "whisper", Enabled: true},
		},
		{
			name: "full valid",
			config: Config{
				ID:             "deepgram",
				Enabled:        true,
				CredentialRef:  "secretref:env:DEEPGRAM_API_KEY",
				Model:          "nova-2",
				MaxConcurrency: 4,
				Timeout:        30 * time.Second,
				Breaker:        BreakerSettings{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: time.Minute},
				RateLimit:      RateLimitSettings{RequestsPerWindow: 60, Window: time.Minute, QueueEnabled: true, MaxQueueSize: 10},
				Retry:          RetrySettings{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Backoff: "exponential", Jitter: true},
			},
		},
		{
			name:    "missing id",
			config:  Config{Enabled: true},
			wantErr: true,
		},
		{
			name:    "negative concurrency",
			config:  Config{ID: "whisper", MaxConcurrency: -1},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			config:  Config{ID: "whisper", Timeout: -time.Second},
			wantErr: true,
		},
		{
			name:    "unknown backoff",
			config:  Config{ID: "whisper", Retry: RetrySettings{Backoff: "fibonacci"}},
			wantErr: true,
		},
		{
			name:   "empty backoff is allowed",
			config: Config{ID: "whisper", Retry: RetrySettings{Backoff: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAll_DuplicateIDs(t *testing.T) {
	configs := []Config{
		{ID: "whisper", Enabled: true},
		{ID: "whisper", Enabled: false},
	}

	if err := ValidateAll(configs); err == nil {
		t.Error("ValidateAll() = nil, want duplicate id error")
	}
}

func TestValidateAll_Valid(t *testing.T) {
	configs := []Config{
		{ID: "whisper", Enabled: true},
		{ID: "deepgram", Enabled: true},
		{ID: "assembly", Enabled: false},
	}

	if err := ValidateAll(configs); err != nil {
		t.Errorf("ValidateAll() error = %v", err)
	}
}

func TestUnavailableError(t *testing.T) {
	err := &UnavailableError{ID: "whisper", Reason: "disabled"}

	if !errors.Is(err, ErrUnavailable) {
		t.Error("errors.Is(err, ErrUnavailable) = false")
	}
	if err.Error() != `provider "whisper" unavailable: disabled` {
		t.Errorf("Error() = %q", err.Error())
	}

	none := &UnavailableError{Reason: "no providers enabled"}
	if none.Error() != "provider: no usable provider: no providers enabled" {
		t.Errorf("Error() = %q", none.Error())
	}
}
