package oidc

import (
	"encoding/json"
	"strconv"

	"github.com/gotosleep/authlogic-openid/internal/auth/provider"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Registration field names map onto standard ID token claims. Unknown
// names are requested as-is.
var fieldClaims = map[string]string{
	"nickname": "nickname",
	"email":    "email",
	"fullname": "name",
	"dob":      "birthdate",
	"gender":   "gender",
	"language": "locale",
	"timezone": "zoneinfo",
	"postcode": "address",
	"country":  "address",
}

func claimFor(field string) string {
	if c, ok := fieldClaims[field]; ok {
		return c
	}
	return field
}

func scopesFor(required, optional []string) []string {
	scopes := []string{oidc.ScopeOpenID}
	var email, profile, address bool
	for _, f := range append(append([]string{}, required...), optional...) {
		switch claimFor(f) {
		case "email":
			email = true
		case "address":
			address = true
		default:
			profile = true
		}
	}
	if email {
		scopes = append(scopes, "email")
	}
	if profile {
		scopes = append(scopes, "profile")
	}
	if address {
		scopes = append(scopes, "address")
	}
	return scopes
}

// claimsRequest builds the "claims" request parameter: required fields
// are essential, optional ones voluntary.
func claimsRequest(required, optional []string) string {
	if len(required) == 0 && len(optional) == 0 {
		return ""
	}
	idToken := map[string]any{}
	for _, f := range optional {
		idToken[claimFor(f)] = nil
	}
	for _, f := range required {
		idToken[claimFor(f)] = map[string]bool{"essential": true}
	}
	b, _ := json.Marshal(map[string]any{"id_token": idToken})
	return string(b)
}

type idClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Nickname          string `json:"nickname"`
	PreferredUsername string `json:"preferred_username"`
	Locale            string `json:"locale"`
	ZoneInfo          string `json:"zoneinfo"`
}

// attributes projects the claims onto registration field names.
func (c idClaims) attributes() provider.Attributes {
	attrs := provider.Attributes{}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}

	nickname := c.Nickname
	if nickname == "" {
		nickname = c.PreferredUsername
	}
	set("nickname", nickname)
	set("email", c.Email)
	if c.Email != "" {
		attrs["email_verified"] = strconv.FormatBool(c.EmailVerified)
	}
	set("fullname", c.Name)
	set("given_name", c.GivenName)
	set("family_name", c.FamilyName)
	set("language", c.Locale)
	set("timezone", c.ZoneInfo)
	return attrs
}
