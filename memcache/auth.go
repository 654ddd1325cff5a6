package memcache

import "time"

// AuthStepStatus is the result of one AuthToken.StepAuthenticate call.
type AuthStepStatus int

const (
	// AuthStepComplete means authentication succeeded; the transport may
	// now carry general traffic.
	AuthStepComplete AuthStepStatus = iota
	// AuthStepContinue means the returned Request must be sent and its
	// reply fed back into another StepAuthenticate call.
	AuthStepContinue
	// AuthStepFailed means authentication cannot proceed; the transport
	// must be disposed without a replacement (spec.md §7, error class 4:
	// treated as a configuration error, not a transient one).
	AuthStepFailed
)

// Authenticator is the SASL plugin contract a Config may supply. Grounded on
// spec.md §4.4's authentication handshake and §6's configuration surface.
type Authenticator interface {
	// CreateToken returns a fresh authentication token for one connection's
	// handshake. Called once per Transport, on (re)connect.
	CreateToken() (AuthToken, error)
}

// AuthToken drives one connection's SASL handshake, one step at a time. Its
// resources must be released via Release() on every exit path -- success,
// failure, or timeout -- per spec.md §5's "scoped acquisition" language.
type AuthToken interface {
	// StepAuthenticate advances the handshake by one step. On
	// AuthStepContinue, the returned Request must be sent over the same
	// transport and its reply delivered back via a second StepAuthenticate
	// call (transports do this by temporarily swapping their
	// send-complete/available hook, per spec.md §9's Open Question
	// resolution -- see Transport.authenticate).
	StepAuthenticate(timeout time.Duration) (AuthStepStatus, Request, error)

	// Release frees any resources (e.g. credentials held in memory) this
	// token acquired. Idempotent.
	Release()
}
