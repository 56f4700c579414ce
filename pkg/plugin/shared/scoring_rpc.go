package shared

import (
	"net/rpc"
)

// ScoringRPCClient is the RPC client for scoring providers.
type ScoringRPCClient struct {
	client *rpc.Client
}

// Name returns the provider name.
func (c *ScoringRPCClient) Name() string {
	var resp string
	err := c.client.Call("Plugin.Name", new(interface{}), &resp)
	if err != nil {
		return ""
	}
	return resp
}

// ScoreArgs are the arguments for the Score RPC call.
type ScoreArgs struct {
	Prompt    string
	Schema    map[string]string
	Level     string
	MaxTokens int
}

// ScoreReply is the reply for the Score RPC call.
type ScoreReply struct {
	Record string // JSON-encoded record
	Error  string
}

// Score sends the prompt and returns the JSON-encoded record.
func (c *ScoringRPCClient) Score(prompt string, schema map[string]string, level string, maxTokens int) (string, error) {
	var resp ScoreReply
	err := c.client.Call("Plugin.Score", &ScoreArgs{
		Prompt:    prompt,
		Schema:    schema,
		Level:     level,
		MaxTokens: maxTokens,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &PluginError{Message: resp.Error}
	}
	return resp.Record, nil
}

// Close closes the provider.
func (c *ScoringRPCClient) Close() error {
	var resp string
	err := c.client.Call("Plugin.Close", new(interface{}), &resp)
	if err != nil {
		return err
	}
	if resp != "" {
		return &PluginError{Message: resp}
	}
	return nil
}

// ScoringRPCServer is the RPC server for scoring providers.
type ScoringRPCServer struct {
	Impl ScoringProvider
}

// Name returns the provider name.
func (s *ScoringRPCServer) Name(args interface{}, resp *string) error {
	*resp = s.Impl.Name()
	return nil
}

// Score sends the prompt to the plugin implementation.
func (s *ScoringRPCServer) Score(args *ScoreArgs, resp *ScoreReply) error {
	record, err := s.Impl.Score(args.Prompt, args.Schema, args.Level, args.MaxTokens)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}
	resp.Record = record
	return nil
}

// Close closes the provider.
func (s *ScoringRPCServer) Close(args interface{}, resp *string) error {
	err := s.Impl.Close()
	if err != nil {
		*resp = err.Error()
	}
	return nil
}

// PluginError represents an error from a plugin.
type PluginError struct {
	Message string
}

func (e *PluginError) Error() string {
	return e.Message
}
