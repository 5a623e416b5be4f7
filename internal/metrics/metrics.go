// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Login failure reasons.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonAccountDisabled    = "account_disabled"
	ReasonUnavailable        = "unavailable"
	ReasonRateLimited        = "rate_limited"
)

// Token rejection reasons.
const (
	ReasonTokenExpired   = "expired"
	ReasonTokenMalformed = "malformed"
	ReasonTokenSignature = "signature"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Authentication metrics
	IncLoginSucceeded()
	IncLoginFailed(reason string)
	ObserveHashDuration(duration time.Duration)

	// Token metrics
	IncTokenIssued()
	IncTokenRejected(reason string)
	IncAuthorizationDenied()

	// Account management metrics
	IncUserRegistered()
	IncAdminBootstrapped()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
