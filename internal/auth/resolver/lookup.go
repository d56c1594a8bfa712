package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
)

const DefaultLookup = "find_by_openid_identifier"

// FindByIdentifier matches on the stored identifier only.
func FindByIdentifier(store account.Store) LookupFunc {
	return func(ctx context.Context, identifier string, _ provider.Attributes) (*account.Account, error) {
		return found(store.FindByIdentifier(ctx, identifier))
	}
}

// FindByIdentifierOrEmail falls back to a provider-verified email, linking
// an existing account to a new identity.
func FindByIdentifierOrEmail(store account.Store) LookupFunc {
	byIdentifier := FindByIdentifier(store)
	return func(ctx context.Context, identifier string, attrs provider.Attributes) (*account.Account, error) {
		a, err := byIdentifier(ctx, identifier, attrs)
		if a != nil || err != nil {
			return a, err
		}
		email := attrs["email"]
		if email == "" || attrs["email_verified"] != "true" {
			return nil, nil
		}
		return found(store.FindByEmail(ctx, email))
	}
}

func found(a *account.Account, err error) (*account.Account, error) {
	if errors.Is(err, account.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// Lookups are the named lookup hooks selectable by configuration.
func Lookups(store account.Store) map[string]LookupFunc {
	return map[string]LookupFunc{
		DefaultLookup:                         FindByIdentifier(store),
		"find_by_openid_identifier_or_email": FindByIdentifierOrEmail(store),
	}
}

// LookupByName returns the named hook or an error listing the known ones.
func LookupByName(store account.Store, name string) (LookupFunc, error) {
	if name == "" {
		name = DefaultLookup
	}
	hooks := Lookups(store)
	if fn, ok := hooks[name]; ok {
		return fn, nil
	}

	known := make([]string, 0, len(hooks))
	for k := range hooks {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, fmt.Errorf("unknown resolver function %q (known: %v)", name, known)
}
