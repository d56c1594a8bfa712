// Package identifier canonicalizes user-supplied federated identifiers.
package identifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Discoverer resolves a canonical identifier to a provider endpoint.
type Discoverer interface {
	Discover(ctx context.Context, identifier string) error
}

// NormalizationError means the identifier is malformed or does not
// resolve to a provider. It is an input error, reported on the
// identifier field.
type NormalizationError struct {
	Identifier string
	Message    string
	Err        error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Identifier, e.Message)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Normalizer validates identifiers and runs discovery on them.
type Normalizer struct {
	discoverer Discoverer
	timeout    time.Duration
}

func NewNormalizer(d Discoverer, timeout time.Duration) *Normalizer {
	return &Normalizer{discoverer: d, timeout: timeout}
}

// Normalize returns the canonical identifier. Blank input yields "" and a
// nil error: there is nothing to verify.
func (n *Normalizer) Normalize(ctx context.Context, raw string) (string, error) {
	canonical, err := Canonicalize(raw)
	if err != nil || canonical == "" {
		return "", err
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	if err := n.discoverer.Discover(ctx, canonical); err != nil {
		return "", &NormalizationError{
			Identifier: canonical,
			Message:    "is not a valid OpenID identifier",
			Err:        err,
		}
	}
	return canonical, nil
}

// Canonicalize applies the syntactic part of normalization without any
// network access: NFKC, default https scheme, lower-case scheme and host,
// no default port, no fragment, "/" for an empty path.
func Canonicalize(raw string) (string, error) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return "", nil
	}

	malformed := func(err error) error {
		return &NormalizationError{Identifier: s, Message: "is not a valid OpenID identifier", Err: err}
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", malformed(err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", malformed(fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" || u.User != nil {
		return "", malformed(fmt.Errorf("missing or invalid host"))
	}

	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}
