package openai

import "strings"

// Pricing 每千 Token 单价（USD）
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// 按模型前缀匹配，越具体的前缀越靠前
var pricingTable = []struct {
	prefix  string
	pricing Pricing
	window  int
}{
	{"gpt-4o-mini", Pricing{InputPer1K: 0.00015, OutputPer1K: 0.0006}, 128000},
	{"gpt-4o", Pricing{InputPer1K: 0.0025, OutputPer1K: 0.01}, 128000},
	{"gpt-4-turbo", Pricing{InputPer1K: 0.01, OutputPer1K: 0.03}, 128000},
	{"gpt-4", Pricing{InputPer1K: 0.03, OutputPer1K: 0.06}, 8192},
	{"gpt-3.5-turbo", Pricing{InputPer1K: 0.0005, OutputPer1K: 0.0015}, 16385},
	{"deepseek-chat", Pricing{InputPer1K: 0.00027, OutputPer1K: 0.0011}, 64000},
	{"qwen-turbo", Pricing{InputPer1K: 0.00005, OutputPer1K: 0.0002}, 131072},
}

const defaultContextWindow = 4096

func lookupPricing(model string) Pricing {
	m := strings.ToLower(model)
	for _, p := range pricingTable {
		if strings.HasPrefix(m, p.prefix) {
			return p.pricing
		}
	}
	return Pricing{}
}

func contextWindow(model string) int {
	m := strings.ToLower(model)
	for _, p := range pricingTable {
		if strings.HasPrefix(m, p.prefix) {
			return p.window
		}
	}
	return defaultContextWindow
}
