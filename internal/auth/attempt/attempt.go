// Package attempt drives one federated login attempt through discovery,
// the provider round-trip and account resolution.
package attempt

import (
	"fmt"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
)

type State int

const (
	Idle State = iota
	IdentifierSet
	Skipped
	AwaitingCallback
	Completed
	Resolved
	Failed
)

var stateNames = [...]string{
	Idle:             "idle",
	IdentifierSet:    "identifier_set",
	Skipped:          "skipped",
	AwaitingCallback: "awaiting_callback",
	Completed:        "completed",
	Resolved:         "resolved",
	Failed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Attempt is one login or registration attempt. It lives for a single
// request; nothing here survives the redirect to the provider.
type Attempt struct {
	RawIdentifier        string
	NormalizedIdentifier string
	IdentifierError      string

	// Account is owned by the store and borrowed here.
	Account *account.Account

	Errors          Errors
	AutoRegistering bool
	RememberMe      bool
	State           State

	// Redirect is set when verification began on this request. The caller
	// must send it and nothing else.
	Redirect *provider.Redirect

	// Cause is the last classified failure: *identifier.NormalizationError,
	// *ProviderFailure or *resolver.ResolutionError.
	Cause error
}

func New() *Attempt {
	return &Attempt{}
}

// Succeeded reports whether the attempt resolved an account without any
// validation error.
func (a *Attempt) Succeeded() bool {
	return a.Errors.Empty() && a.Account != nil
}

// Save runs continuation unless a redirect was issued, in which case the
// response already belongs to the provider round-trip. It reports whether
// the attempt succeeded.
func (a *Attempt) Save(continuation func(*Attempt)) bool {
	if a.Redirect != nil {
		return false
	}
	if continuation != nil {
		continuation(a)
	}
	return a.Succeeded()
}

// ProviderFailure means the provider declined, errored, timed out or sent
// a callback that could not be processed.
type ProviderFailure struct {
	Message string
	Err     error
}

func (e *ProviderFailure) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderFailure) Unwrap() error { return e.Err }
