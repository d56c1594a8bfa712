package attempt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/auth"
	"github.com/gotosleep/authlogic-openid/internal/auth/identifier"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
	"github.com/gotosleep/authlogic-openid/internal/auth/resolver"
	"github.com/gotosleep/authlogic-openid/internal/logger"
	"github.com/gotosleep/authlogic-openid/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Return-target parameters. The provider echoes them back unchanged.
const (
	ParamForSession = "for_session"
	ParamRememberMe = "remember_me"
)

const (
	msgBeginFailed     = "OpenID verification could not be started"
	msgMalformed       = "OpenID verification failed: the provider response was invalid"
	msgNotVerified     = "OpenID verification failed"
	msgMissingResponse = "OpenID verification response is missing"
)

// Credentials is the typed credentials payload of a login form.
type Credentials struct {
	Identifier string
	RememberMe bool
}

// Request is what the current request contributes besides credentials.
type Request struct {
	ForSession bool // set on provider returns via the return target
	RememberMe bool // echoed through the return target
	Callback   provider.Callback
}

type Config struct {
	RequiredFields []string
	OptionalFields []string

	// ReturnURL is where the provider sends the user back to.
	ReturnURL string

	// Timeout bounds each provider call. Zero means no extra bound.
	Timeout time.Duration
}

// Validator runs attempts. It holds only read-only collaborators and is
// safe for concurrent use.
type Validator struct {
	normalizer *identifier.Normalizer
	client     provider.Client
	resolver   *resolver.Resolver
	cfg        Config
}

func NewValidator(
	normalizer *identifier.Normalizer,
	client provider.Client,
	resolver *resolver.Resolver,
	cfg Config,
) *Validator {
	return &Validator{
		normalizer: normalizer,
		client:     client,
		resolver:   resolver,
		cfg:        cfg,
	}
}

// SetCredentials moves the attempt to IdentifierSet. Remember-me is copied
// before anything else so the return target can carry it.
func (v *Validator) SetCredentials(ctx context.Context, a *Attempt, c Credentials) {
	a.State = IdentifierSet
	if c.RememberMe {
		a.RememberMe = true
	}
	a.RawIdentifier = c.Identifier

	normalized, err := v.normalizer.Normalize(ctx, c.Identifier)
	if err != nil {
		msg := err.Error()
		var ne *identifier.NormalizationError
		if errors.As(err, &ne) {
			msg = ne.Message
		}
		a.IdentifierError = msg
		a.Cause = err
		a.Errors.Add(auth.FieldIdentifier, msg)

		logger.From(ctx).Info("openid identifier rejected",
			logger.Component("attempt"),
			logger.Identifier(a.RawIdentifier),
			logger.Err(err),
		)
		return
	}
	a.NormalizedIdentifier = normalized
}

// ShouldVerify reports whether federated verification applies to this
// attempt on this request.
func (v *Validator) ShouldVerify(a *Attempt, req Request) bool {
	if a.Succeeded() || !a.Errors.Empty() {
		return false
	}
	return a.NormalizedIdentifier != "" || req.ForSession
}

// Validate advances the attempt as far as the current request allows and
// returns the resulting state.
func (v *Validator) Validate(ctx context.Context, a *Attempt, req Request) State {
	if req.RememberMe {
		a.RememberMe = true
	}

	switch {
	case !v.ShouldVerify(a, req):
		a.State = Skipped
	case !req.Callback.Present():
		v.begin(ctx, a)
	default:
		v.complete(ctx, a, req.Callback)
	}

	metrics.Attempts.WithLabelValues(a.State.String()).Inc()
	logger.From(ctx).Debug("openid attempt validated",
		logger.Component("attempt"),
		logger.State(a.State.String()),
	)
	return a.State
}

func (v *Validator) begin(ctx context.Context, a *Attempt) {
	if a.NormalizedIdentifier == "" {
		v.fail(ctx, a, &ProviderFailure{Message: msgMissingResponse})
		return
	}

	returnTo, err := v.returnTarget(a)
	if err != nil {
		v.fail(ctx, a, &ProviderFailure{Message: msgBeginFailed, Err: err})
		return
	}

	ctx, cancel := v.withTimeout(ctx)
	defer cancel()
	timer := prometheus.NewTimer(metrics.ProviderLatency.WithLabelValues("begin"))
	redirect, err := v.client.Begin(ctx, provider.BeginRequest{
		Identifier:     a.NormalizedIdentifier,
		RequiredFields: v.cfg.RequiredFields,
		OptionalFields: v.cfg.OptionalFields,
		ReturnTo:       returnTo,
		Method:         http.MethodPost,
	})
	timer.ObserveDuration()

	if err != nil {
		v.fail(ctx, a, &ProviderFailure{Message: msgBeginFailed, Err: err})
		return
	}

	a.Redirect = redirect
	a.State = AwaitingCallback
}

func (v *Validator) complete(ctx context.Context, a *Attempt, cb provider.Callback) {
	a.State = Completed

	cctx, cancel := v.withTimeout(ctx)
	timer := prometheus.NewTimer(metrics.ProviderLatency.WithLabelValues("complete"))
	outcome, err := v.client.Complete(cctx, cb)
	timer.ObserveDuration()
	cancel()

	if err != nil {
		v.fail(ctx, a, &ProviderFailure{Message: msgMalformed, Err: err})
		return
	}
	if outcome == nil || !outcome.Succeeded {
		msg := msgNotVerified
		if outcome != nil && outcome.FailureMessage != "" {
			msg = outcome.FailureMessage
		}
		v.fail(ctx, a, &ProviderFailure{Message: msg})
		return
	}

	res, err := v.resolver.Resolve(ctx, outcome)
	if err != nil {
		v.failResolution(ctx, a, err)
		return
	}

	a.Account = res.Account
	a.AutoRegistering = res.Created
	a.NormalizedIdentifier = outcome.VerifiedIdentifier
	a.State = Resolved
	if res.Created {
		metrics.Registrations.Inc()
	}

	logger.From(ctx).Info("openid login resolved",
		logger.Component("attempt"),
		logger.UserID(res.Account.ID),
		logger.Bool("auto_registered", res.Created),
		logger.Bool("identifier_updated", res.IdentifierUpdated),
	)
}

func (v *Validator) fail(ctx context.Context, a *Attempt, pf *ProviderFailure) {
	a.Errors.Add(auth.FieldBase, pf.Message)
	a.Cause = pf
	a.State = Failed

	logger.From(ctx).Warn("openid verification failed",
		logger.Component("attempt"),
		logger.Err(pf),
	)
}

func (v *Validator) failResolution(ctx context.Context, a *Attempt, err error) {
	a.Cause = err
	a.State = Failed

	var re *resolver.ResolutionError
	if !errors.As(err, &re) {
		a.Errors.Add(auth.FieldBase, err.Error())
		return
	}

	if len(re.FieldErrors) > 0 {
		a.Errors.Merge(re.FieldErrors)
	} else {
		a.Errors.Add(re.Field, re.Message)
	}
	if re.Field == auth.FieldIdentifier {
		a.IdentifierError = re.Message
	}

	logger.From(ctx).Info("openid identity not resolved",
		logger.Component("attempt"),
		logger.Err(err),
	)
}

// returnTarget is ReturnURL with the continuation flags the provider must
// echo back.
func (v *Validator) returnTarget(a *Attempt) (string, error) {
	u, err := url.Parse(v.cfg.ReturnURL)
	if err != nil {
		return "", fmt.Errorf("attempt: invalid return url: %w", err)
	}
	q := u.Query()
	q.Set(ParamForSession, "1")
	if a.RememberMe {
		q.Set(ParamRememberMe, "1")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (v *Validator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, v.cfg.Timeout)
}
