package ai

import (
	"sync"

	"aiwriter/internal/ai/aierr"
)

// registration 注册顺序中的一项
type registration struct {
	key     string
	adapter ModelAdapter
}

// Registry 适配器注册表，启动时写入，运行期以读为主
type Registry struct {
	mu              sync.RWMutex
	exact           map[string]ModelAdapter // provider:model
	byProvider      map[string]ModelAdapter // provider -> 最近注册的适配器
	order           []registration
	defaultProvider string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		exact:      make(map[string]ModelAdapter),
		byProvider: make(map[string]ModelAdapter),
	}
}

func registryKey(provider, model string) string {
	return provider + ":" + model
}

// Register 注册适配器；首个注册的提供方成为默认，isDefault 为 true 时覆盖默认
// 同一提供方多次注册时，仅按 provider 选择命中最后注册的适配器
func (r *Registry) Register(adapter ModelAdapter, isDefault bool) error {
	if adapter == nil {
		return ErrAdapterRequired
	}
	provider, model := adapter.Provider(), adapter.Model()
	key := registryKey(provider, model)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.exact[key]; exists {
		for i := range r.order {
			if r.order[i].key == key {
				r.order[i].adapter = adapter
			}
		}
	} else {
		r.order = append(r.order, registration{key: key, adapter: adapter})
	}
	r.exact[key] = adapter
	r.byProvider[provider] = adapter
	if isDefault || r.defaultProvider == "" {
		r.defaultProvider = provider
	}
	return nil
}

// Select 按优先级选择适配器：
// provider+model 精确匹配 → 仅 provider → 仅 model（按注册顺序首个）→ 默认提供方
func (r *Registry) Select(provider, model string) (ModelAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider != "" && model != "" {
		if a, ok := r.exact[registryKey(provider, model)]; ok {
			return a, nil
		}
	}
	if provider != "" {
		if a, ok := r.byProvider[provider]; ok {
			return a, nil
		}
	}
	if model != "" {
		for _, reg := range r.order {
			if reg.adapter.Model() == model {
				return reg.adapter, nil
			}
		}
	}
	if r.defaultProvider != "" {
		if a, ok := r.byProvider[r.defaultProvider]; ok {
			return a, nil
		}
	}
	return nil, aierr.NewNoAdapterFound(provider, model)
}

// DefaultProvider 当前默认提供方
func (r *Registry) DefaultProvider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultProvider
}

// Providers 按注册顺序列出全部适配器
func (r *Registry) Providers() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defaultKey := ""
	if a, ok := r.byProvider[r.defaultProvider]; ok {
		defaultKey = registryKey(a.Provider(), a.Model())
	}
	out := make([]ProviderInfo, 0, len(r.order))
	for _, reg := range r.order {
		out = append(out, ProviderInfo{
			Provider:  reg.adapter.Provider(),
			Model:     reg.adapter.Model(),
			IsDefault: reg.key == defaultKey,
		})
	}
	return out
}

// uniqueByProvider 每个提供方取一个适配器，顺序按提供方首次注册
func (r *Registry) uniqueByProvider() []ModelAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.byProvider))
	out := make([]ModelAdapter, 0, len(r.byProvider))
	for _, reg := range r.order {
		p := reg.adapter.Provider()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, r.byProvider[p])
	}
	return out
}
