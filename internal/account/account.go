package account

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound            = errors.New("account not found")
	ErrDuplicateIdentifier = errors.New("openid identifier already taken")
)

// Account is a local user record. OpenIDIdentifier holds the canonical
// identifier of the linked federated identity, empty when none is linked.
type Account struct {
	ID               string
	Login            string
	Email            string
	Name             string
	OpenIDIdentifier string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store persists accounts. Implementations never establish an
// authenticated session as a side effect of Create.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// Create assigns ID and timestamps. It returns FieldErrors when the
	// record is invalid and ErrDuplicateIdentifier when another account
	// already holds a.OpenIDIdentifier.
	Create(ctx context.Context, a *Account) error

	UpdateIdentifier(ctx context.Context, id string, identifier string) error
}

// FieldErrors maps a field name to its validation messages.
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Fields returns the field names in a stable order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for f := range fe {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (fe FieldErrors) Error() string {
	var parts []string
	for _, f := range fe.Fields() {
		for _, m := range fe[f] {
			parts = append(parts, f+" "+m)
		}
	}
	return strings.Join(parts, "; ")
}

// Validate checks the record before it is written.
func Validate(a *Account) error {
	fe := FieldErrors{}
	if strings.TrimSpace(a.OpenIDIdentifier) == "" && strings.TrimSpace(a.Login) == "" {
		fe.Add("login", "can't be blank")
	}
	if a.Email != "" && !strings.Contains(a.Email, "@") {
		fe.Add("email", "is invalid")
	}
	if len(a.Login) > 100 {
		fe.Add("login", "is too long (maximum is 100 characters)")
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}
