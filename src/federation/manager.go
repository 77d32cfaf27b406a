package federation

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/deepgram/wsh/src/config"
)

// Manager owns the backend registry and all connection supervisors. It is
// created on startup from the federation config and supports runtime
// add/remove of backends.
type Manager struct {
	mu          sync.Mutex
	registry    *Registry
	connections map[string]*Connection
	ipAccess    *IPAccess

	ctx           context.Context
	localServerID string
	localToken    string
	defaultToken  string
}

// NewManager creates a manager and spawns a connection for every backend
// in the config.
func NewManager(ctx context.Context, cfg *config.Federation, localServerID, localToken string) *Manager {
	m := &Manager{
		registry:      NewRegistry(),
		connections:   make(map[string]*Connection),
		ctx:           ctx,
		localServerID: localServerID,
		localToken:    localToken,
	}
	var block, allow []string
	if cfg != nil {
		m.defaultToken = cfg.DefaultToken
		block = cfg.IPAccess.Blocklist
		allow = cfg.IPAccess.Allowlist
	}
	m.ipAccess = NewIPAccess(block, allow)

	if cfg != nil {
		for _, server := range cfg.Servers {
			if err := m.AddBackend(server.Address, server.Token); err != nil {
				logrus.Warnf("federation: configured backend %s not added: %v", server.Address, err)
			}
		}
	}
	return m
}

// Registry exposes the backend registry for the API layer.
func (m *Manager) Registry() *Registry { return m.registry }

// AddBackend validates the address, resolves the token, registers the
// backend, and spawns its connection supervisor.
func (m *Manager) AddBackend(address, token string) error {
	normalized, err := ValidateAddress(address)
	if err != nil {
		return fmt.Errorf("invalid backend address: %w", err)
	}
	if err := m.ipAccess.CheckAddress(normalized); err != nil {
		return fmt.Errorf("backend address denied: %w", err)
	}

	resolved := ResolveToken(token, m.defaultToken, m.localToken)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.registry.Add(BackendEntry{
		Address: normalized,
		Token:   resolved,
		Health:  HealthConnecting,
		Role:    RoleMember,
	}); err != nil {
		return err
	}
	m.connections[normalized] = Dial(m.ctx, normalized, resolved, m.registry, m.localServerID)
	return nil
}

// RemoveBackendByAddress shuts down and removes a backend. Returns true if
// one was removed.
func (m *Manager) RemoveBackendByAddress(address string) bool {
	normalized, err := ValidateAddress(address)
	if err != nil {
		normalized = address
	}
	m.mu.Lock()
	conn := m.connections[normalized]
	delete(m.connections, normalized)
	m.mu.Unlock()
	if conn != nil {
		conn.Shutdown()
	}
	return m.registry.RemoveByAddress(normalized)
}

// RemoveBackendByHostname shuts down and removes a backend found by its
// hostname. Returns true if one was removed.
func (m *Manager) RemoveBackendByHostname(hostname string) bool {
	entry, ok := m.registry.GetByHostname(hostname)
	if !ok {
		return false
	}
	m.mu.Lock()
	conn := m.connections[entry.Address]
	delete(m.connections, entry.Address)
	m.mu.Unlock()
	if conn != nil {
		conn.Shutdown()
	}
	return m.registry.RemoveByHostname(hostname)
}

// ShutdownAll signals every supervisor and waits for them to exit.
func (m *Manager) ShutdownAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()

	for _, c := range conns {
		c.Shutdown()
	}
	for _, c := range conns {
		c.Join()
	}
}
