package models

import (
	"os"
	"strings"
)

// ModelConfig describes the chat model a run talks to.
// Extra stores vendor specific additional parameters (for example the Ark region).
type ModelConfig struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	BaseUrl  string                 `json:"base_url"`
	ApiKey   string                 `json:"api_key"`
	Extra    map[string]interface{} `json:"extra"`
}

// Normalize lowercases the provider and resolves the API key from the
// provider's conventional environment variable when none is configured.
func (m *ModelConfig) Normalize() {
	m.Provider = strings.ToLower(strings.TrimSpace(m.Provider))
	if m.Extra == nil {
		m.Extra = map[string]interface{}{}
	}
	if m.ApiKey != "" {
		return
	}
	for _, key := range providerKeyEnv[m.Provider] {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			m.ApiKey = v
			return
		}
	}
}

// Region returns the "region" extra value, if any.
func (m *ModelConfig) Region() string {
	if m.Extra == nil {
		return ""
	}
	region, _ := m.Extra["region"].(string)
	return region
}

var providerKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"custom":    {"OPENAI_API_KEY"},
	"deepseek":  {"DEEPSEEK_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"google":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"ark":       {"ARK_API_KEY"},
	"qianfan":   {"QIANFAN_API_KEY"},
	"qwen":      {"DASHSCOPE_API_KEY"},
}

// SupportedModelProviders supported model providers
var SupportedModelProviders = map[string]struct{}{
	"openai":    {},
	"deepseek":  {},
	"anthropic": {},
	"google":    {},
	"ark":       {},
	"ollama":    {},
	"qianfan":   {},
	"qwen":      {},
	"custom":    {},
}
