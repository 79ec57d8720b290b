package openai

import (
	"fmt"

	"aiwriter/pkg/aiinterface"
)

// 兼容 OpenAI 协议的提供方
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderQwen     = "qwen"
	ProviderOllama   = "ollama"
)

var defaultBaseURLs = map[string]string{
	ProviderOpenAI:   "https://api.openai.com/v1",
	ProviderDeepSeek: "https://api.deepseek.com",
	ProviderQwen:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ProviderOllama:   "http://localhost:11434/v1",
}

// resolveBaseURL 配置优先，其次使用提供方默认地址
func resolveBaseURL(provider, configured string) string {
	if configured != "" {
		return configured
	}
	return defaultBaseURLs[provider]
}

// Factory OpenAI 兼容适配器工厂
type Factory struct{}

// NewFactory 创建工厂
func NewFactory() *Factory {
	return &Factory{}
}

// CreateAdapter 根据配置创建适配器
func (f *Factory) CreateAdapter(config *aiinterface.AdapterConfig) (aiinterface.ModelAdapter, error) {
	if config == nil {
		return nil, fmt.Errorf("适配器配置不能为空")
	}
	if config.Provider != "" {
		if _, ok := defaultBaseURLs[config.Provider]; !ok {
			return nil, fmt.Errorf("不支持的提供方: %s", config.Provider)
		}
	}
	adapter, err := NewAdapter(config)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// SupportedProviders 支持的提供方
func (f *Factory) SupportedProviders() []string {
	return []string{ProviderOpenAI, ProviderDeepSeek, ProviderQwen, ProviderOllama}
}
