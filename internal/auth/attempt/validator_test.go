package attempt

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth"
	"github.com/gotosleep/authlogic-openid/internal/auth/identifier"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
	"github.com/gotosleep/authlogic-openid/internal/auth/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice     = "https://example.com/alice"
	returnURL = "https://app.example/session"
)

// fakeClient stands in for a provider: known identifiers discover, and
// Complete returns whatever outcome the test staged.
type fakeClient struct {
	known       map[string]bool
	begins      []provider.BeginRequest
	completes   int
	outcome     *provider.Outcome
	completeErr error
	beginErr    error
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Discover(_ context.Context, id string) error {
	if f.known[id] {
		return nil
	}
	return errors.New("no endpoint")
}

func (f *fakeClient) Begin(_ context.Context, req provider.BeginRequest) (*provider.Redirect, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begins = append(f.begins, req)
	return &provider.Redirect{URL: "https://example.com/auth?state=s", Method: "GET"}, nil
}

func (f *fakeClient) Complete(_ context.Context, _ provider.Callback) (*provider.Outcome, error) {
	f.completes++
	return f.outcome, f.completeErr
}

type fixture struct {
	client *fakeClient
	store  *account.MemoryStore
	v      *Validator
}

func newFixture(rc resolver.Config) *fixture {
	client := &fakeClient{known: map[string]bool{alice: true}}
	store := account.NewMemoryStore()
	v := NewValidator(
		identifier.NewNormalizer(client, time.Second),
		client,
		resolver.New(store, rc),
		Config{
			RequiredFields: []string{"email"},
			OptionalFields: []string{"nickname"},
			ReturnURL:      returnURL,
			Timeout:        time.Second,
		},
	)
	return &fixture{client: client, store: store, v: v}
}

func callback() provider.Callback {
	return provider.Callback{Params: url.Values{"code": {"c"}, "state": {"s"}}}
}

// returnRequest simulates the provider posting back to the return target.
func (f *fixture) returnRequest(outcome *provider.Outcome) *Attempt {
	f.client.outcome = outcome
	a := New()
	f.v.SetCredentials(context.Background(), a, Credentials{})
	f.v.Validate(context.Background(), a, Request{ForSession: true, Callback: callback()})
	return a
}

func TestBlankIdentifierSkipsVerification(t *testing.T) {
	f := newFixture(resolver.Config{})

	for _, raw := range []string{"", "   ", "\t"} {
		a := New()
		f.v.SetCredentials(context.Background(), a, Credentials{Identifier: raw})
		assert.Empty(t, a.NormalizedIdentifier)
		assert.False(t, f.v.ShouldVerify(a, Request{}))

		assert.Equal(t, Skipped, f.v.Validate(context.Background(), a, Request{}))
		assert.True(t, a.Errors.Empty())
	}
	assert.Empty(t, f.client.begins)
}

func TestDiscoveryFailureIsFieldError(t *testing.T) {
	f := newFixture(resolver.Config{AutoRegister: true})

	for _, raw := range []string{"https://unknown.example/bob", "ftp://example.com/x"} {
		a := New()
		f.v.SetCredentials(context.Background(), a, Credentials{Identifier: raw})
		f.v.Validate(context.Background(), a, Request{})

		assert.Equal(t, 1, a.Errors.Len())
		assert.Len(t, a.Errors.On(auth.FieldIdentifier), 1)
		assert.NotEmpty(t, a.IdentifierError)
		assert.Nil(t, a.Account)
		assert.False(t, a.Succeeded())

		var ne *identifier.NormalizationError
		assert.ErrorAs(t, a.Cause, &ne)
	}
	assert.Empty(t, f.client.begins)
}

func TestBeginIssuesRedirect(t *testing.T) {
	f := newFixture(resolver.Config{})
	a := New()

	f.v.SetCredentials(context.Background(), a, Credentials{Identifier: "example.com/alice", RememberMe: true})
	require.Equal(t, alice, a.NormalizedIdentifier)
	require.True(t, a.RememberMe)

	assert.Equal(t, AwaitingCallback, f.v.Validate(context.Background(), a, Request{}))
	require.NotNil(t, a.Redirect)
	require.Len(t, f.client.begins, 1)

	req := f.client.begins[0]
	assert.Equal(t, alice, req.Identifier)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, []string{"email"}, req.RequiredFields)
	assert.Equal(t, []string{"nickname"}, req.OptionalFields)

	ret, err := url.Parse(req.ReturnTo)
	require.NoError(t, err)
	assert.Equal(t, "1", ret.Query().Get(ParamForSession))
	assert.Equal(t, "1", ret.Query().Get(ParamRememberMe))

	called := false
	assert.False(t, a.Save(func(*Attempt) { called = true }))
	assert.False(t, called, "continuation must be suppressed after a redirect")
}

func TestBeginFailure(t *testing.T) {
	f := newFixture(resolver.Config{})
	f.client.beginErr = errors.New("timeout")

	a := New()
	f.v.SetCredentials(context.Background(), a, Credentials{Identifier: alice})
	assert.Equal(t, Failed, f.v.Validate(context.Background(), a, Request{}))
	assert.Equal(t, []string{msgBeginFailed}, a.Errors.On(auth.FieldBase))
	assert.Nil(t, a.Redirect)
}

func TestRoundTripResolvesSameAccountAsLookup(t *testing.T) {
	f := newFixture(resolver.Config{})
	existing := &account.Account{Login: "alice", OpenIDIdentifier: alice}
	require.NoError(t, f.store.Create(context.Background(), existing))

	begin := New()
	f.v.SetCredentials(context.Background(), begin, Credentials{Identifier: alice})
	require.Equal(t, AwaitingCallback, f.v.Validate(context.Background(), begin, Request{}))

	attrs := provider.Attributes{"email": "alice@example.com"}
	a := f.returnRequest(provider.Verified(alice, attrs))

	direct, err := resolver.FindByIdentifier(f.store)(context.Background(), alice, attrs)
	require.NoError(t, err)

	assert.Equal(t, Resolved, a.State)
	require.True(t, a.Succeeded())
	assert.Equal(t, direct.ID, a.Account.ID)
	assert.False(t, a.AutoRegistering)
	assert.Nil(t, a.Redirect)

	called := false
	assert.True(t, a.Save(func(*Attempt) { called = true }))
	assert.True(t, called)
}

func TestAutoRegisterScenario(t *testing.T) {
	f := newFixture(resolver.Config{AutoRegister: true})

	a := f.returnRequest(provider.Verified(alice, provider.Attributes{"nickname": "alice"}))

	assert.Equal(t, Resolved, a.State)
	assert.True(t, a.Errors.Empty())
	require.NotNil(t, a.Account)
	assert.Equal(t, alice, a.Account.OpenIDIdentifier)
	assert.True(t, a.AutoRegistering)
	assert.Equal(t, 1, f.store.Len())
}

func TestRepeatedCallbackDoesNotDuplicate(t *testing.T) {
	f := newFixture(resolver.Config{AutoRegister: true})
	outcome := provider.Verified(alice, nil)

	first := f.returnRequest(outcome)
	second := f.returnRequest(outcome)

	require.True(t, first.Succeeded())
	require.True(t, second.Succeeded())
	assert.Equal(t, first.Account.ID, second.Account.ID)
	assert.False(t, second.AutoRegistering)
	assert.Equal(t, 1, f.store.Len())
}

func TestIdentifierMigrationScenario(t *testing.T) {
	store := account.NewMemoryStore()
	existing := &account.Account{Login: "alice", OpenIDIdentifier: "https://example.com/alice-old"}
	require.NoError(t, store.Create(context.Background(), existing))

	f := newFixture(resolver.Config{})
	f.v.resolver = resolver.New(store, resolver.Config{
		Lookup: func(ctx context.Context, _ string, _ provider.Attributes) (*account.Account, error) {
			return store.FindByID(ctx, existing.ID)
		},
	})

	a := f.returnRequest(provider.Verified("https://example.com/alice-new", nil))

	require.True(t, a.Succeeded())
	stored, err := store.FindByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/alice-new", stored.OpenIDIdentifier)
}

func TestProviderDeclined(t *testing.T) {
	f := newFixture(resolver.Config{AutoRegister: true})

	a := f.returnRequest(provider.Failed("cancelled"))

	assert.Equal(t, Failed, a.State)
	assert.Equal(t, []string{"cancelled"}, a.Errors.On(auth.FieldBase))
	assert.Nil(t, a.Redirect)
	assert.Nil(t, a.Account)
	assert.Equal(t, 0, f.store.Len())
}

func TestNoMatchingAccount(t *testing.T) {
	f := newFixture(resolver.Config{})

	a := f.returnRequest(provider.Verified(alice, nil))

	assert.Equal(t, Failed, a.State)
	assert.Equal(t, []string{resolver.NoMatchMessage}, a.Errors.On(auth.FieldIdentifier))
	assert.Equal(t, resolver.NoMatchMessage, a.IdentifierError)
	assert.Nil(t, a.Account)
	assert.Contains(t, a.Errors.Full()[0], "Openid identifier did not match any users")
}

func TestMalformedCallbackIsProviderFailure(t *testing.T) {
	f := newFixture(resolver.Config{})
	f.client.completeErr = provider.ErrMalformedCallback

	a := f.returnRequest(nil)

	assert.Equal(t, Failed, a.State)
	assert.Equal(t, []string{msgMalformed}, a.Errors.On(auth.FieldBase))

	var pf *ProviderFailure
	require.ErrorAs(t, a.Cause, &pf)
	assert.ErrorIs(t, a.Cause, provider.ErrMalformedCallback)
}

func TestAutoRegisterFieldErrorsAreCopied(t *testing.T) {
	f := newFixture(resolver.Config{AutoRegister: true})

	a := f.returnRequest(provider.Verified(alice, provider.Attributes{"email": "nope"}))

	assert.Equal(t, Failed, a.State)
	assert.Equal(t, []string{"is invalid"}, a.Errors.On("email"))
	assert.Nil(t, a.Account)
}

func TestLookupFailureRendersSentence(t *testing.T) {
	f := newFixture(resolver.Config{})
	f.v.resolver = resolver.New(f.store, resolver.Config{
		Lookup: func(context.Context, string, provider.Attributes) (*account.Account, error) {
			return nil, errors.New("db down")
		},
	})

	a := f.returnRequest(provider.Verified(alice, nil))

	assert.Equal(t, Failed, a.State)
	assert.Equal(t, []string{resolver.MsgLookupFailed}, a.Errors.Full())
}

func TestReturnWithoutCallbackOrIdentifier(t *testing.T) {
	f := newFixture(resolver.Config{})
	a := New()

	assert.Equal(t, Failed, f.v.Validate(context.Background(), a, Request{ForSession: true}))
	assert.Equal(t, []string{msgMissingResponse}, a.Errors.On(auth.FieldBase))
}

func TestPriorSuccessSkips(t *testing.T) {
	f := newFixture(resolver.Config{})
	a := New()
	a.Account = &account.Account{ID: "1"}
	a.NormalizedIdentifier = alice

	assert.False(t, f.v.ShouldVerify(a, Request{ForSession: true}))
	assert.Equal(t, Skipped, f.v.Validate(context.Background(), a, Request{ForSession: true, Callback: callback()}))
	assert.Equal(t, 0, f.client.completes)
}

func TestRememberMeFromReturnTarget(t *testing.T) {
	f := newFixture(resolver.Config{AutoRegister: true})
	f.client.outcome = provider.Verified(alice, nil)

	a := New()
	f.v.Validate(context.Background(), a, Request{ForSession: true, RememberMe: true, Callback: callback()})
	assert.True(t, a.RememberMe)
	assert.True(t, a.Succeeded())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_callback", AwaitingCallback.String())
	assert.Equal(t, "state(42)", State(42).String())
}
