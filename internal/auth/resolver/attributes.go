package resolver

import (
	"strings"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth/provider"
)

// AttributeMapper copies provider attributes onto a new account.
type AttributeMapper func(a *account.Account, attrs provider.Attributes)

// Simple-registration names first, attribute-exchange URIs as aliases.
var (
	emailKeys    = []string{"email", "http://axschema.org/contact/email"}
	nicknameKeys = []string{"nickname", "http://axschema.org/namePerson/friendly"}
	fullnameKeys = []string{"fullname", "http://axschema.org/namePerson"}
)

func DefaultAttributeMapper(a *account.Account, attrs provider.Attributes) {
	if v := first(attrs, emailKeys); v != "" {
		a.Email = v
	}
	if v := first(attrs, nicknameKeys); v != "" {
		a.Login = v
	}

	name := first(attrs, fullnameKeys)
	if name == "" {
		name = strings.TrimSpace(attrs["given_name"] + " " + attrs["family_name"])
	}
	if name != "" {
		a.Name = name
	}
}

func first(attrs provider.Attributes, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			return v
		}
	}
	return ""
}
