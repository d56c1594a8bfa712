package provider

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedClient struct{ name string }

func (n namedClient) Name() string { return n.name }
func (namedClient) Discover(context.Context, string) error { return nil }
func (namedClient) Begin(context.Context, BeginRequest) (*Redirect, error) { return nil, nil }
func (namedClient) Complete(context.Context, Callback) (*Outcome, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry(namedClient{"oidc"}, namedClient{"static"})

	c, err := r.Get("oidc")
	require.NoError(t, err)
	assert.Equal(t, "oidc", c.Name())

	_, err = r.Get("saml")
	assert.EqualError(t, err, "unknown identity provider: saml")
}

func TestOutcomeConstructors(t *testing.T) {
	ok := Verified("https://example.com/alice", nil)
	assert.True(t, ok.Succeeded)
	assert.NotNil(t, ok.Attributes)

	failed := Failed("cancelled")
	assert.False(t, failed.Succeeded)
	assert.Equal(t, "cancelled", failed.FailureMessage)
	assert.Nil(t, failed.Attributes)
}

func TestCallbackPresent(t *testing.T) {
	assert.False(t, Callback{}.Present())
	assert.True(t, Callback{Params: url.Values{"code": {"x"}}}.Present())
}
