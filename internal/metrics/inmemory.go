package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	LoginsSucceeded          uint64
	LoginsInvalidCredentials uint64
	LoginsDisabled           uint64
	LoginsUnavailable        uint64
	LoginsRateLimited        uint64
	HashDurationCount        uint64
	HashDurationTotalNs      int64
	TokensIssued             uint64
	TokensExpired            uint64
	TokensMalformed          uint64
	TokensBadSignature       uint64
	AuthorizationDenied      uint64
	UsersRegistered          uint64
	AdminsBootstrapped       uint64
}

// InMemoryRecorder stores metrics in memory. The API exposes it at /metrics.
type InMemoryRecorder struct {
	loginsSucceeded          uint64
	loginsInvalidCredentials uint64
	loginsDisabled           uint64
	loginsUnavailable        uint64
	loginsRateLimited        uint64
	hashDurationCount        uint64
	hashDurationTotalNs      int64
	tokensIssued             uint64
	tokensExpired            uint64
	tokensMalformed          uint64
	tokensBadSignature       uint64
	authorizationDenied      uint64
	usersRegistered          uint64
	adminsBootstrapped       uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		LoginsSucceeded:          atomic.LoadUint64(&m.loginsSucceeded),
		LoginsInvalidCredentials: atomic.LoadUint64(&m.loginsInvalidCredentials),
		LoginsDisabled:           atomic.LoadUint64(&m.loginsDisabled),
		LoginsUnavailable:        atomic.LoadUint64(&m.loginsUnavailable),
		LoginsRateLimited:        atomic.LoadUint64(&m.loginsRateLimited),
		HashDurationCount:        atomic.LoadUint64(&m.hashDurationCount),
		HashDurationTotalNs:      atomic.LoadInt64(&m.hashDurationTotalNs),
		TokensIssued:             atomic.LoadUint64(&m.tokensIssued),
		TokensExpired:            atomic.LoadUint64(&m.tokensExpired),
		TokensMalformed:          atomic.LoadUint64(&m.tokensMalformed),
		TokensBadSignature:       atomic.LoadUint64(&m.tokensBadSignature),
		AuthorizationDenied:      atomic.LoadUint64(&m.authorizationDenied),
		UsersRegistered:          atomic.LoadUint64(&m.usersRegistered),
		AdminsBootstrapped:       atomic.LoadUint64(&m.adminsBootstrapped),
	}
}

// IncLoginSucceeded increments the successful login counter.
func (m *InMemoryRecorder) IncLoginSucceeded() {
	atomic.AddUint64(&m.loginsSucceeded, 1)
}

// IncLoginFailed increments the failed login counter for reason.
// Unknown reasons are dropped.
func (m *InMemoryRecorder) IncLoginFailed(reason string) {
	switch reason {
	case ReasonInvalidCredentials:
		atomic.AddUint64(&m.loginsInvalidCredentials, 1)
	case ReasonAccountDisabled:
		atomic.AddUint64(&m.loginsDisabled, 1)
	case ReasonUnavailable:
		atomic.AddUint64(&m.loginsUnavailable, 1)
	case ReasonRateLimited:
		atomic.AddUint64(&m.loginsRateLimited, 1)
	}
}

// ObserveHashDuration records time spent hashing or verifying a password.
func (m *InMemoryRecorder) ObserveHashDuration(duration time.Duration) {
	atomic.AddUint64(&m.hashDurationCount, 1)
	atomic.AddInt64(&m.hashDurationTotalNs, duration.Nanoseconds())
}

// IncTokenIssued increments the issued token counter.
func (m *InMemoryRecorder) IncTokenIssued() {
	atomic.AddUint64(&m.tokensIssued, 1)
}

// IncTokenRejected increments the rejected token counter for reason.
func (m *InMemoryRecorder) IncTokenRejected(reason string) {
	switch reason {
	case ReasonTokenExpired:
		atomic.AddUint64(&m.tokensExpired, 1)
	case ReasonTokenMalformed:
		atomic.AddUint64(&m.tokensMalformed, 1)
	case ReasonTokenSignature:
		atomic.AddUint64(&m.tokensBadSignature, 1)
	}
}

// IncAuthorizationDenied increments the role check failure counter.
func (m *InMemoryRecorder) IncAuthorizationDenied() {
	atomic.AddUint64(&m.authorizationDenied, 1)
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncAdminBootstrapped increments the bootstrap creation counter.
func (m *InMemoryRecorder) IncAdminBootstrapped() {
	atomic.AddUint64(&m.adminsBootstrapped, 1)
}
