// Package shared defines shared interfaces and types for external plugins.
package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is a common handshake that is shared by plugin and host.
// Prevents plugins compiled with different versions from running.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ASKSTREAM_PLUGIN",
	MagicCookieValue: "askstream-v1",
}

// PluginType identifies the type of plugin.
type PluginType string

const (
	PluginTypeScoring PluginType = "scoring"
)

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]plugin.Plugin{
	string(PluginTypeScoring): &ScoringPlugin{},
}

// ScoringProvider is the interface that scoring plugins must implement.
// This mirrors pkg/provider.ScoringProvider but is self-contained for
// plugins: the record travels as raw JSON so net/rpc can gob-encode it.
type ScoringProvider interface {
	Name() string
	Score(prompt string, schema map[string]string, level string, maxTokens int) (string, error)
	Close() error
}

// ScoringPlugin is the plugin.Plugin implementation for scoring providers.
type ScoringPlugin struct {
	Impl ScoringProvider
}

func (p *ScoringPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ScoringRPCServer{Impl: p.Impl}, nil
}

func (p *ScoringPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ScoringRPCClient{client: c}, nil
}
