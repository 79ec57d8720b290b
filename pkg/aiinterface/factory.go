package aiinterface

// AdapterFactory 模型适配器工厂接口
// 用于在启动阶段根据配置创建具体提供方的适配器
type AdapterFactory interface {
	// CreateAdapter 根据配置创建适配器
	CreateAdapter(config *AdapterConfig) (ModelAdapter, error)

	// SupportedProviders 获取支持的提供方列表
	SupportedProviders() []string
}
