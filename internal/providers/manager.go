package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docrag/internal/config"
	"docrag/internal/util"
)

type NamedGenerator struct {
	Ref       ProviderRef
	Generator Generator
}

// Manager tries generation providers in order and fails over to the next one
// on quota, rate limit and transient errors. Mock providers go last.
type Manager struct {
	generators []NamedGenerator
}

func NewManager(cfg config.LLMConfig) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.Providers) {
		g, err := buildGenerator(ref, cfg)
		if err != nil {
			return nil, err
		}
		m.generators = append(m.generators, NamedGenerator{Ref: ref, Generator: g})
	}
	m.generators = preferredOrder(m.generators)
	return m, nil
}

// NewManagerFrom wraps prebuilt generators, keeping their order.
func NewManagerFrom(gens ...NamedGenerator) *Manager {
	return &Manager{generators: gens}
}

func (m *Manager) Model() string {
	if len(m.generators) == 0 {
		return ""
	}
	return m.generators[0].Generator.Model()
}

func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if len(m.generators) == 0 {
		return GenerateResponse{}, fmt.Errorf("%w: no generation providers configured", util.ErrPermanent)
	}
	var errs []error
	for _, g := range m.generators {
		resp, err := g.Generator.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", g.Ref.Raw, err))
		if ctx.Err() != nil || !Failover(err) {
			break
		}
	}
	return GenerateResponse{}, errors.Join(errs...)
}

func (m *Manager) Refs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.generators))
	for _, g := range m.generators {
		out = append(out, g.Ref)
	}
	return out
}

func preferredOrder(gens []NamedGenerator) []NamedGenerator {
	out := make([]NamedGenerator, 0, len(gens))
	for _, g := range gens {
		if strings.ToLower(g.Ref.Name) != "mock" {
			out = append(out, g)
		}
	}
	for _, g := range gens {
		if strings.ToLower(g.Ref.Name) == "mock" {
			out = append(out, g)
		}
	}
	return out
}

// buildGenerator resolves one entry of LLM_PROVIDERS. The part after the
// colon, when present, overrides the model, e.g. "openai:gpt-4o".
func buildGenerator(ref ProviderRef, cfg config.LLMConfig) (Generator, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(0).Chat(), nil
	case "openai":
		p, err := NewOpenAIProvider(OpenAIOptions{
			APIKey:    cfg.APIKey,
			ChatModel: nameOr(ref.KeyAlias, nameOr(cfg.Model, DefaultOpenAIChatModel)),
		})
		if err != nil {
			return nil, err
		}
		return p.Chat(), nil
	case "groq":
		p, err := NewGroqProvider(cfg.GroqAPIKey, nameOr(ref.KeyAlias, cfg.GroqModel))
		if err != nil {
			return nil, err
		}
		return p.Chat(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", ref.Name)
	}
}

// NewEmbedder builds the single configured embedding provider, rate limited
// when EMBED_RATE_PER_SEC is set.
func NewEmbedder(cfg config.EmbedConfig) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "mock":
		e = NewMockProvider(cfg.Dim)
	case "openai":
		p, err := NewOpenAIProvider(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			EmbedModel: nameOr(cfg.Model, DefaultOpenAIEmbedModel),
			Dimension:  cfg.Dim,
		})
		if err != nil {
			return nil, err
		}
		e = p
	case "ollama":
		e = NewOllamaEmbeddingProvider(cfg.BaseURL, cfg.Model, cfg.Dim)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if cfg.RatePerSec > 0 {
		e = NewRateLimited(e, cfg.RatePerSec, cfg.RateBurst)
	}
	return e, nil
}
