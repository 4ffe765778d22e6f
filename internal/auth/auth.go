// Package auth maps API keys to the clients allowed to call the
// classification API.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/straja-ai/triage/internal/config"
)

// Client is the runtime representation of an API caller.
type Client struct {
	Name string
}

// Auth holds mappings from API keys to clients.
type Auth struct {
	apiKeyToClient map[string]Client
}

// NewFromConfig builds an Auth instance from the configured clients. With
// no clients the returned Auth is disabled and every request is allowed.
func NewFromConfig(clients []config.ClientConfig) (*Auth, error) {
	m := make(map[string]Client)

	for _, c := range clients {
		if c.Name == "" {
			return nil, fmt.Errorf("client with empty name in config")
		}
		keys := c.Keys()
		if len(keys) == 0 {
			return nil, fmt.Errorf("client %q has no usable api key", c.Name)
		}
		for _, key := range keys {
			if _, exists := m[key]; exists {
				return nil, fmt.Errorf("api key is assigned to multiple clients (second: %q)", c.Name)
			}
			m[key] = Client{Name: c.Name}
		}
	}

	return &Auth{apiKeyToClient: m}, nil
}

// Enabled reports whether any keys are configured.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.apiKeyToClient) > 0
}

// Lookup returns the client for a given API key, if any.
func (a *Auth) Lookup(apiKey string) (Client, bool) {
	if a == nil {
		return Client{}, false
	}
	c, ok := a.apiKeyToClient[apiKey]
	return c, ok
}

// ParseBearerToken extracts the token from an "Authorization: Bearer <t>"
// header value. The scheme is case-insensitive.
func ParseBearerToken(h string) (string, bool) {
	if h == "" {
		return "", false
	}
	parts := strings.Fields(h)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

type clientKey struct{}

// WithClient returns ctx carrying c.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the authenticated client stored in ctx.
func ClientFrom(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok
}
