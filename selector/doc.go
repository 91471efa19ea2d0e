// Package selector chooses which speech-to-text provider serves a request.
//
// Strategies range from fully manual to metrics-driven optimization
// (latency, cost, error rate), a deterministic round-robin, and A/B
// traffic splitting for gradual rollout. A forced override bypasses
// strategy evaluation entirely, and optional fallback substitutes the
// first other available provider when the chosen one is disabled or has
// no usable credential.
package selector
