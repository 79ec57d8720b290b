package api

import (
	"testing"

	"aiwriter/internal/ai"
	"aiwriter/internal/config"
	"aiwriter/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type namedAdapter struct {
	echoAdapter
	provider string
	model    string
}

func (a namedAdapter) Provider() string { return a.provider }
func (a namedAdapter) Model() string    { return a.model }

type stubFactory struct{}

func (stubFactory) CreateAdapter(cfg *aiinterface.AdapterConfig) (aiinterface.ModelAdapter, error) {
	return namedAdapter{provider: cfg.Provider, model: cfg.Model}, nil
}

func (stubFactory) SupportedProviders() []string { return []string{"openai"} }

func newAdapterContainer(t *testing.T) *AppContainer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return &AppContainer{
		Logger:         logger,
		AdapterFactory: stubFactory{},
		Gateway:        ai.NewGateway(ai.NewRegistry(), nil, logger),
	}
}

func TestInitAdapters_DefaultModelServesProviderOnlyRequests(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.DefaultProvider = "openai"
	cfg.AI.OpenAI.Provider = "openai"
	cfg.AI.OpenAI.APIKey = "sk-test"

	t.Run("显式默认模型", func(t *testing.T) {
		cfg.AI.OpenAI.Models = []config.ModelConfig{{Name: "gpt-4o"}, {Name: "gpt-4o-mini", Default: true}, {Name: "o3-mini"}}
		c := newAdapterContainer(t)
		require.NoError(t, c.initAdapters(cfg))

		assert.Equal(t, "openai", c.Gateway.ResolveProvider(&ai.GenerateRequest{Prompt: "x"}))
		got, err := c.Gateway.Registry().Select("openai", "")
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", got.Model())
		assert.Len(t, c.Gateway.GetRegisteredProviders(), 3)
	})

	t.Run("未标记时取首个模型", func(t *testing.T) {
		cfg.AI.OpenAI.Models = []config.ModelConfig{{Name: "gpt-4o"}, {Name: "gpt-4o-mini"}}
		c := newAdapterContainer(t)
		require.NoError(t, c.initAdapters(cfg))

		got, err := c.Gateway.Registry().Select("openai", "")
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", got.Model())
	})

	t.Run("无凭证时跳过", func(t *testing.T) {
		cfg.AI.OpenAI.APIKey = ""
		c := newAdapterContainer(t)
		require.NoError(t, c.initAdapters(cfg))
		assert.Empty(t, c.Gateway.GetRegisteredProviders())
	})
}
