package provider

import (
	"context"
	"errors"
	"net/url"
)

// ErrMalformedCallback is returned by Complete when the callback payload
// cannot be correlated to a verification this client started.
var ErrMalformedCallback = errors.New("malformed provider callback")

// Client is the boundary to a federated identity provider. Implementations
// run discovery and the protocol exchange; they never look up accounts or
// create sessions.
type Client interface {
	// Name returns the registry key (e.g. "oidc").
	Name() string

	// Discover resolves a canonical identifier to a provider endpoint.
	// An error means the identifier cannot be verified.
	Discover(ctx context.Context, identifier string) error

	// Begin starts verification and returns where to send the user.
	Begin(ctx context.Context, req BeginRequest) (*Redirect, error)

	// Complete consumes the provider's callback. A provider-side refusal
	// is a failed Outcome, not an error; errors are reserved for payloads
	// that cannot be processed at all.
	Complete(ctx context.Context, cb Callback) (*Outcome, error)
}

// BeginRequest describes one verification round-trip.
type BeginRequest struct {
	Identifier     string
	RequiredFields []string
	OptionalFields []string
	ReturnTo       string // echoed back unchanged on the callback
	Method         string // how the provider should return: GET or POST
}

// Redirect is an instruction for the caller's response writer.
type Redirect struct {
	URL    string
	Method string
	Fields url.Values // form fields, only for POST redirects
}

// Callback is the parameter set the provider returned with, stripped of
// the caller's own return-target parameters.
type Callback struct {
	Params url.Values
}

// Present reports whether the request carries provider response data.
func (c Callback) Present() bool {
	return len(c.Params) > 0
}

// Attributes is the profile data a provider released with a successful
// verification, keyed by attribute name ("email", "nickname", ...).
type Attributes map[string]string

// Outcome is the result of one completed round-trip.
type Outcome struct {
	Succeeded          bool
	FailureMessage     string
	VerifiedIdentifier string
	Attributes         Attributes
}

// Verified builds a successful outcome.
func Verified(identifier string, attrs Attributes) *Outcome {
	if attrs == nil {
		attrs = Attributes{}
	}
	return &Outcome{Succeeded: true, VerifiedIdentifier: identifier, Attributes: attrs}
}

// Failed builds an unsuccessful outcome. It never carries attributes.
func Failed(msg string) *Outcome {
	return &Outcome{FailureMessage: msg}
}
