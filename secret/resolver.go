package secret

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

const refPrefix = "secretref:"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolver resolves credential references using registered providers.
//
// Values with the "secretref:<provider>:<ref>" form are routed to the named
// provider; anything else is returned after strict environment expansion.
// The guard's selector uses Check to decide whether a provider has a usable
// credential at all.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver with the given providers. An EnvProvider
// is always registered.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	r.Register(EnvProvider{})
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Resolver) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// Resolve returns the credential value for ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	expanded, err := expandEnvStrict(ref)
	if err != nil {
		return "", err
	}

	name, rest, ok := ParseRef(expanded)
	if !ok {
		return expanded, nil
	}

	p, registered := r.providers[name]
	if !registered {
		return "", fmt.Errorf("secret provider %q is not registered", name)
	}
	return p.Resolve(ctx, rest)
}

// Check reports whether ref resolves to a non-empty credential. Used for
// provider availability without handing the value to the caller.
func (r *Resolver) Check(ctx context.Context, ref string) error {
	value, err := r.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("credential reference %q resolved to an empty value", ref)
	}
	return nil
}

// ParseRef parses a credential reference of the form:
//
//	secretref:<provider>:<ref>
func ParseRef(value string) (provider string, ref string, ok bool) {
	if !strings.HasPrefix(value, refPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(value, refPrefix)
	name, ref, found := strings.Cut(rest, ":")
	if !found || name == "" || ref == "" {
		return "", "", false
	}
	return name, ref, true
}

// expandEnvStrict expands ${VAR} forms, erroring when a referenced
// variable is missing from the environment. `$$` emits a literal `$`.
func expandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00VOXGUARD_SECRET_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		key := match[1]
		if _, ok := os.LookupEnv(key); !ok {
			missing[key] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	s = strings.ReplaceAll(s, dollarSentinel, "$")
	return s, nil
}
