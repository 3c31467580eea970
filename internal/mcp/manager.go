package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/stagehand-ai/stagehand/internal/tools"
)

// DefaultConfigFile is the server registry persisted next to the
// process working directory.
const DefaultConfigFile = "mcp-servers.json"

// Manager owns the set of configured external tool servers: their
// persisted registry, their live connections, and the routing of
// federated tool calls.
type Manager struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	configs []ServerConfig
	clients map[string]*Client
}

// NewManager creates a manager persisting its registry at path.
func NewManager(path string, logger *slog.Logger) *Manager {
	if path == "" {
		path = DefaultConfigFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		path:    path,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
	}
}

// Load reads the persisted registry. A missing file is an empty
// registry, not an error.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", m.path, err)
	}

	var configs []ServerConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return fmt.Errorf("parse %s: %w", m.path, err)
	}

	m.mu.Lock()
	m.configs = configs
	m.mu.Unlock()
	m.logger.Info("loaded tool server registry", "servers", len(configs))
	return nil
}

// save writes the registry atomically: temp file in the same directory,
// then rename. Callers hold m.mu.
func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.configs, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".mcp-servers-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Configs returns the registered server configurations.
func (m *Manager) Configs() []ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServerConfig, len(m.configs))
	copy(out, m.configs)
	return out
}

// Add registers and persists a new server. The ID must be unused.
func (m *Manager) Add(cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.configs {
		if existing.ID == cfg.ID {
			return fmt.Errorf("server %q already registered", cfg.ID)
		}
	}
	m.configs = append(m.configs, cfg)
	return m.save()
}

// Update replaces the configuration of a registered server and persists
// the registry. A live connection keeps running on the old config until
// the next Reconnect.
func (m *Manager) Update(id string, cfg ServerConfig) error {
	cfg.ID = id
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.configs {
		if existing.ID == id {
			m.configs[i] = cfg
			return m.save()
		}
	}
	return fmt.Errorf("server %q not registered", id)
}

// Remove disconnects and unregisters a server, persisting the registry.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	client := m.clients[id]
	delete(m.clients, id)

	found := false
	kept := m.configs[:0]
	for _, cfg := range m.configs {
		if cfg.ID == id {
			found = true
			continue
		}
		kept = append(kept, cfg)
	}
	m.configs = kept

	var err error
	if found {
		err = m.save()
	}
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if !found {
		return fmt.Errorf("server %q not registered", id)
	}
	return err
}

// ConnectAll connects every enabled server in parallel. Individual
// failures are logged, never fatal; the gateway serves with whatever
// subset came up.
func (m *Manager) ConnectAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cfg := range m.Configs() {
		if !cfg.Enabled {
			continue
		}
		wg.Add(1)
		go func(cfg ServerConfig) {
			defer wg.Done()
			if err := m.connect(ctx, cfg); err != nil {
				m.logger.Error("tool server connect failed", "server", cfg.ID, "error", err)
			}
		}(cfg)
	}
	wg.Wait()
}

func (m *Manager) connect(ctx context.Context, cfg ServerConfig) error {
	m.mu.RLock()
	_, exists := m.clients[cfg.ID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	if !m.adopt(client) {
		// A concurrent connect for the same id won; tear this one down.
		client.Disconnect()
	}
	return nil
}

// adopt installs a freshly connected client unless another connection
// for the same id was registered while the handshake ran. The check and
// the insert happen under one lock so only one client can win.
func (m *Manager) adopt(client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[client.cfg.ID]; exists {
		return false
	}
	m.clients[client.cfg.ID] = client
	return true
}

// Disconnect tears down the live connection for a server. Its
// configuration stays registered.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	client := m.clients[id]
	delete(m.clients, id)
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
}

// Reconnect tears down any existing connection for the server and
// connects it fresh, picking up the latest configuration.
func (m *Manager) Reconnect(ctx context.Context, id string) error {
	m.mu.Lock()
	var cfg *ServerConfig
	for i := range m.configs {
		if m.configs[i].ID == id {
			cfg = &m.configs[i]
			break
		}
	}
	client := m.clients[id]
	delete(m.clients, id)
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	if cfg == nil {
		return fmt.Errorf("server %q not registered", id)
	}
	return m.connect(ctx, *cfg)
}

// Stop disconnects every live server.
func (m *Manager) Stop() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for id, client := range clients {
		client.Disconnect()
		m.logger.Info("disconnected tool server", "server", id)
	}
}

// Tools returns every federated tool across connected servers, with
// fully-qualified names.
func (m *Manager) Tools() []tools.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []tools.Descriptor
	for _, cfg := range m.configs {
		client, ok := m.clients[cfg.ID]
		if !ok {
			continue
		}
		for _, t := range client.Tools() {
			out = append(out, tools.Descriptor{
				Name:        FederatedName(cfg.ID, t.Name),
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	return out
}

// Execute routes a fully-qualified federated call to its server. It
// implements the executor's federated dispatch.
func (m *Manager) Execute(ctx context.Context, fullName string, args map[string]any) (any, error) {
	serverID, toolName, err := SplitFederatedName(fullName)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	client, ok := m.clients[serverID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool server %q is not connected", serverID)
	}

	return client.CallTool(ctx, toolName, args)
}

// Status reports every registered server without touching the wire:
// connection state and tool counts come from cached handshake data.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.configs))
	for _, cfg := range m.configs {
		status := ServerStatus{
			ID:          cfg.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
			Enabled:     cfg.Enabled,
		}
		if client, ok := m.clients[cfg.ID]; ok {
			status.Connected = client.Connected()
			status.Server = client.ServerInfo()
			status.Tools = len(client.Tools())
		}
		out = append(out, status)
	}
	return out
}

var _ tools.FederatedExecutor = (*Manager)(nil)
