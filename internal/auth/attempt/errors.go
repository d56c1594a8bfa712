package attempt

import (
	"encoding/json"
	"strings"

	"github.com/gotosleep/authlogic-openid/internal/account"
	"github.com/gotosleep/authlogic-openid/internal/auth"
)

// Errors is an ordered field → message multimap. Insertion order is kept
// across fields, so the first problem reported is the first one shown.
type Errors struct {
	entries []entry
}

type entry struct {
	Field   string
	Message string
}

func (e *Errors) Add(field, message string) {
	e.entries = append(e.entries, entry{Field: field, Message: message})
}

// Merge appends a store's validation errors in stable field order.
func (e *Errors) Merge(fe account.FieldErrors) {
	for _, f := range fe.Fields() {
		for _, m := range fe[f] {
			e.Add(f, m)
		}
	}
}

// On returns the messages recorded for field.
func (e *Errors) On(field string) []string {
	var out []string
	for _, en := range e.entries {
		if en.Field == field {
			out = append(out, en.Message)
		}
	}
	return out
}

// Fields returns each field once, in first-seen order.
func (e *Errors) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, en := range e.entries {
		if !seen[en.Field] {
			seen[en.Field] = true
			out = append(out, en.Field)
		}
	}
	return out
}

// Full renders user-facing sentences. Base messages stand alone; field
// messages are prefixed with the humanized field name.
func (e *Errors) Full() []string {
	out := make([]string, 0, len(e.entries))
	for _, en := range e.entries {
		if en.Field == auth.FieldBase {
			out = append(out, en.Message)
			continue
		}
		out = append(out, humanize(en.Field)+" "+en.Message)
	}
	return out
}

func (e *Errors) Len() int    { return len(e.entries) }
func (e *Errors) Empty() bool { return len(e.entries) == 0 }

func (e *Errors) MarshalJSON() ([]byte, error) {
	m := make(map[string][]string, len(e.entries))
	for _, en := range e.entries {
		m[en.Field] = append(m[en.Field], en.Message)
	}
	return json.Marshal(m)
}

func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
