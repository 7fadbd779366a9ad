package dataapi

import (
	"context"
	"net/http"
)

// ParamSpec describes one input parameter of a tool.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Advanced    bool   `json:"advanced,omitempty"`
}

// ToolMeta carries platform-facing tool settings.
type ToolMeta struct {
	TelegramPromptInputKey string `json:"telegramPromptInputKey,omitempty"`
	DeploymentID           string `json:"deploymentId,omitempty"`
	WorkflowID             string `json:"workflowId,omitempty"`
	Hidden                 bool   `json:"hidden,omitempty"`
}

// ToolDefinition describes one generation tool as published by the tool
// registry service.
type ToolDefinition struct {
	ToolID      string               `json:"toolId"`
	DisplayName string               `json:"displayName"`
	CommandName string               `json:"commandName,omitempty"`
	Description string               `json:"description,omitempty"`
	Category    string               `json:"category,omitempty"`
	InputSchema map[string]ParamSpec `json:"inputSchema"`
	Metadata    ToolMeta             `json:"metadata,omitempty"`
}

// PromptKey returns the input key that receives free-text prompts,
// defaulting to input_prompt.
func (t *ToolDefinition) PromptKey() string {
	if t.Metadata.TelegramPromptInputKey != "" {
		return t.Metadata.TelegramPromptInputKey
	}
	return "input_prompt"
}

// ToolRegistry fetches the full set of published tool definitions.
func (c *Client) ToolRegistry(ctx context.Context) ([]ToolDefinition, error) {
	var out []ToolDefinition
	if err := c.do(ctx, http.MethodGet, "/tools/registry", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
