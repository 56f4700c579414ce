// Package host provides the plugin host for loading external plugins.
package host

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/askstream/askstream/pkg/plugin/shared"
)

// Manager manages external plugins.
type Manager struct {
	plugins map[string]*LoadedPlugin
	mu      sync.RWMutex
	logger  hclog.Logger
}

// LoadedPlugin represents a loaded plugin.
type LoadedPlugin struct {
	Name    string
	Type    shared.PluginType
	Path    string
	Client  *plugin.Client
	Scoring shared.ScoringProvider
}

// NewManager creates a new plugin manager.
func NewManager() *Manager {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "plugins",
		Level:  hclog.Warn,
		Output: os.Stderr,
	})

	return &Manager{
		plugins: make(map[string]*LoadedPlugin),
		logger:  logger,
	}
}

// LoadScoring loads a scoring plugin binary and registers it under name.
func (m *Manager) LoadScoring(name, path string) (*LoadedPlugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, exists := m.plugins[name]; exists {
		return p, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("plugin not found: %s", path)
	}

	slog.Info("loading plugin", "name", name, "path", path)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: shared.Handshake,
		Plugins:         shared.PluginMap,
		Cmd:             exec.Command(path),
		Logger:          m.logger,
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(string(shared.PluginTypeScoring))
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	scoring, ok := raw.(shared.ScoringProvider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin does not implement ScoringProvider")
	}

	loaded := &LoadedPlugin{
		Name:    name,
		Type:    shared.PluginTypeScoring,
		Path:    path,
		Client:  client,
		Scoring: scoring,
	}

	m.plugins[name] = loaded
	slog.Info("plugin loaded", "name", name)

	return loaded, nil
}

// GetScoringPlugin returns a loaded scoring plugin.
func (m *Manager) GetScoringPlugin(name string) (shared.ScoringProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.plugins[name]
	if !exists {
		return nil, fmt.Errorf("plugin not loaded: %s", name)
	}
	if p.Scoring == nil {
		return nil, fmt.Errorf("plugin is not a scoring provider: %s", name)
	}
	return p.Scoring, nil
}

// UnloadPlugin unloads a plugin.
func (m *Manager) UnloadPlugin(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.plugins[name]
	if !exists {
		return nil
	}

	if p.Scoring != nil {
		p.Scoring.Close()
	}
	p.Client.Kill()

	delete(m.plugins, name)
	slog.Info("plugin unloaded", "name", name)

	return nil
}

// UnloadAll unloads all plugins.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.plugins {
		if p.Scoring != nil {
			p.Scoring.Close()
		}
		p.Client.Kill()
		slog.Debug("plugin unloaded", "name", name)
	}

	m.plugins = make(map[string]*LoadedPlugin)
}

// ListLoaded returns a list of loaded plugins.
func (m *Manager) ListLoaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.plugins {
		names = append(names, name)
	}
	return names
}
