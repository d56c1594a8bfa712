package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
	"github.com/gotosleep/authlogic-openid/internal/logger"
)

// NoMatchMessage is reported when a verified identifier has no account
// and auto-registration is off.
const NoMatchMessage = "did not match any users in our database, have you set up your account to use OpenID?"

// Base-field messages stand alone in rendered errors.
const (
	MsgLookupFailed   = "Your account could not be looked up"
	MsgRegisterFailed = "Your account could not be registered"
)

// LookupFunc finds the account a verified identity belongs to. It returns
// nil, nil when there is none.
type LookupFunc func(ctx context.Context, identifier string, attrs provider.Attributes) (*account.Account, error)

// Config is fixed at construction and shared read-only by all requests.
type Config struct {
	Lookup        LookupFunc
	AutoRegister  bool
	MapAttributes AttributeMapper

	// StrictIdentifierUpdate fails the login when the stored identifier
	// of a matched account cannot be updated. Off by default: the failure
	// is only logged.
	StrictIdentifierUpdate bool
}

// Result is a resolved account.
type Result struct {
	Account           *account.Account
	Created           bool
	IdentifierUpdated bool
}

// ResolutionError means the verified identity could not be turned into an
// account. FieldErrors carries the store's validation errors when
// auto-registration failed.
type ResolutionError struct {
	Field       string
	Message     string
	FieldErrors account.FieldErrors
	Err         error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Field, e.Message, e.Err)
	}
	return e.Field + " " + e.Message
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver determines which local account an external identity belongs
// to. It is the only place where identity-to-account mapping lives.
type Resolver struct {
	store account.Store
	cfg   Config
}

func New(store account.Store, cfg Config) *Resolver {
	if cfg.Lookup == nil {
		cfg.Lookup = FindByIdentifier(store)
	}
	if cfg.MapAttributes == nil {
		cfg.MapAttributes = DefaultAttributeMapper
	}
	return &Resolver{store: store, cfg: cfg}
}

// Resolve maps a successful outcome to an account. Resolving the same
// outcome twice yields the same account.
func (r *Resolver) Resolve(ctx context.Context, outcome *provider.Outcome) (*Result, error) {
	if outcome == nil || !outcome.Succeeded {
		return nil, errors.New("resolver: outcome is not a successful verification")
	}
	log := logger.From(ctx).With(logger.Component("resolver"), logger.Identifier(outcome.VerifiedIdentifier))

	acct, err := r.cfg.Lookup(ctx, outcome.VerifiedIdentifier, outcome.Attributes)
	if err != nil {
		log.Error("account lookup failed", logger.Err(err))
		return nil, &ResolutionError{Field: auth.FieldBase, Message: MsgLookupFailed, Err: err}
	}

	if acct != nil {
		updated, err := r.linkIdentifier(ctx, acct, outcome.VerifiedIdentifier)
		if err != nil {
			return nil, err
		}
		return &Result{Account: acct, IdentifierUpdated: updated}, nil
	}

	if !r.cfg.AutoRegister {
		return nil, &ResolutionError{Field: auth.FieldIdentifier, Message: NoMatchMessage}
	}
	return r.register(ctx, outcome)
}

// linkIdentifier stores the verified identifier on a matched account whose
// identifier drifted (provider migration, email-based match).
func (r *Resolver) linkIdentifier(ctx context.Context, acct *account.Account, identifier string) (bool, error) {
	if acct.OpenIDIdentifier == identifier {
		return false, nil
	}

	err := r.store.UpdateIdentifier(ctx, acct.ID, identifier)
	if err != nil {
		logger.From(ctx).Warn("openid identifier update failed",
			logger.Component("resolver"),
			logger.UserID(acct.ID),
			logger.Identifier(identifier),
			logger.Err(err),
		)
		if r.cfg.StrictIdentifierUpdate {
			return false, &ResolutionError{Field: auth.FieldIdentifier, Message: "could not be updated", Err: err}
		}
		return false, nil
	}

	acct.OpenIDIdentifier = identifier
	return true, nil
}

func (r *Resolver) register(ctx context.Context, outcome *provider.Outcome) (*Result, error) {
	log := logger.From(ctx).With(logger.Component("resolver"), logger.Op("register"))
	id := outcome.VerifiedIdentifier

	// The store is authoritative; a retry of the same outcome lands here.
	if existing, err := r.store.FindByIdentifier(ctx, id); err == nil {
		return &Result{Account: existing}, nil
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, &ResolutionError{Field: auth.FieldBase, Message: MsgLookupFailed, Err: err}
	}

	acct := &account.Account{OpenIDIdentifier: id}
	r.cfg.MapAttributes(acct, outcome.Attributes)

	err := r.store.Create(ctx, acct)

	var fe account.FieldErrors
	switch {
	case err == nil:
		log.Info("account auto-registered", logger.UserID(acct.ID), logger.Identifier(id))
		return &Result{Account: acct, Created: true}, nil

	case errors.Is(err, account.ErrDuplicateIdentifier):
		existing, ferr := r.store.FindByIdentifier(ctx, id)
		if ferr != nil {
			return nil, &ResolutionError{Field: auth.FieldBase, Message: MsgLookupFailed, Err: ferr}
		}
		return &Result{Account: existing}, nil

	case errors.As(err, &fe):
		log.Info("auto-registration rejected", logger.String("errors", fe.Error()))
		return nil, &ResolutionError{Field: auth.FieldBase, Message: MsgRegisterFailed, FieldErrors: fe, Err: err}

	default:
		log.Error("auto-registration failed", logger.Err(err))
		return nil, &ResolutionError{Field: auth.FieldBase, Message: MsgRegisterFailed, Err: err}
	}
}
