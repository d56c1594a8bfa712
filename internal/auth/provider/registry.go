package provider

import "fmt"

// Registry holds the configured provider clients by name.
type Registry struct {
	clients map[string]Client
}

// NewRegistry registers the given clients by name. Names must be unique.
func NewRegistry(list ...Client) *Registry {
	m := make(map[string]Client, len(list))
	for _, c := range list {
		m[c.Name()] = c
	}
	return &Registry{clients: m}
}

// Get returns the client by name or an error if not registered.
func (r *Registry) Get(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("unknown identity provider: %s", name)
	}
	return c, nil
}
