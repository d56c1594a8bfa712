// Package auth holds names shared by the federated login packages.
package auth

// Validation error keys. Field-level problems are reported on
// FieldIdentifier, problems with the attempt as a whole on FieldBase.
const (
	FieldIdentifier = "openid_identifier"
	FieldBase       = "base"
)
