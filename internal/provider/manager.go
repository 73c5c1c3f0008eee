package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"example.com/activitysync/internal/domain"
)

// Manager resolves provider clients by name.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
	oauth   map[string]OAuthClient
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]Client),
		oauth:   make(map[string]OAuthClient),
	}
}

// Register adds client under name. Clients that also implement OAuthClient are registered
// for token exchange as well.
func (m *Manager) Register(name string, client Client) {
	key := Normalize(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[key] = client
	if oauth, ok := client.(OAuthClient); ok {
		m.oauth[key] = oauth
	}
}

// Provider returns the client registered under name.
func (m *Manager) Provider(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, name)
	}
	return client, nil
}

// OAuthProvider returns the token client registered under name.
func (m *Manager) OAuthProvider(name string) (OAuthClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.oauth[Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedProvider, name)
	}
	return client, nil
}

// Supports reports whether a client is registered under name.
func (m *Manager) Supports(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[Normalize(name)]
	return ok
}

// Names lists registered providers in lexical order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize canonicalises a provider name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
