package resolver

import (
	"context"
	"testing"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupByName(t *testing.T) {
	store := account.NewMemoryStore()

	fn, err := LookupByName(store, "")
	require.NoError(t, err)
	assert.NotNil(t, fn)

	_, err = LookupByName(store, "find_by_login")
	assert.ErrorContains(t, err, `unknown resolver function "find_by_login"`)
}

func TestFindByIdentifierOrEmail(t *testing.T) {
	ctx := context.Background()
	store := account.NewMemoryStore()
	existing := &account.Account{Login: "alice", Email: "alice@example.com"}
	require.NoError(t, store.Create(ctx, existing))

	lookup := FindByIdentifierOrEmail(store)

	a, err := lookup(ctx, alice, provider.Attributes{"email": "alice@example.com", "email_verified": "true"})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, existing.ID, a.ID)

	// An unverified email never links.
	a, err = lookup(ctx, alice, provider.Attributes{"email": "alice@example.com"})
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestEmailLinkStoresIdentifier(t *testing.T) {
	ctx := context.Background()
	store := account.NewMemoryStore()
	existing := &account.Account{Login: "alice", Email: "alice@example.com"}
	require.NoError(t, store.Create(ctx, existing))

	r := New(store, Config{Lookup: FindByIdentifierOrEmail(store)})
	res, err := r.Resolve(ctx, provider.Verified(alice, provider.Attributes{
		"email":          "alice@example.com",
		"email_verified": "true",
	}))
	require.NoError(t, err)
	assert.True(t, res.IdentifierUpdated)

	linked, err := store.FindByIdentifier(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, linked.ID)
}

func TestDefaultAttributeMapper(t *testing.T) {
	var a account.Account
	DefaultAttributeMapper(&a, provider.Attributes{
		"http://axschema.org/contact/email":       "alice@example.com",
		"http://axschema.org/namePerson/friendly": "alice",
		"given_name":                              "Alice",
		"family_name":                             "Liddell",
	})

	assert.Equal(t, "alice@example.com", a.Email)
	assert.Equal(t, "alice", a.Login)
	assert.Equal(t, "Alice Liddell", a.Name)
}
