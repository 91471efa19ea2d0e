package secret

import (
	"context"
	"fmt"
	"os"
)

// Provider resolves credential material by reference string.
//
// Implementations must be safe for concurrent use and must not log
// resolved values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// EnvProvider resolves references against the process environment, so a
// credential reference like "secretref:env:DEEPGRAM_API_KEY" reads the
// DEEPGRAM_API_KEY variable.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve looks the reference up as an environment variable. A set but
// empty variable is treated as missing.
func (EnvProvider) Resolve(ctx context.Context, ref string) (string, error) {
	value, ok := os.LookupEnv(ref)
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable %q is not set", ref)
	}
	return value, nil
}
