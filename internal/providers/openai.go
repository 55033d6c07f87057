package providers

import (
	"context"
	"fmt"
	"strings"

	"docrag/internal/util"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultOpenAIEmbedModel = "text-embedding-3-small"
	DefaultOpenAIChatModel  = "gpt-4o-mini"

	// Embeddings endpoint limit on inputs per request.
	maxOpenAIBatch = 2048
)

type OpenAIOptions struct {
	Name       string
	APIKey     string
	BaseURL    string
	EmbedModel string
	ChatModel  string
	Dimension  int
}

// OpenAIProvider talks to the OpenAI API or any server speaking the same
// protocol (Groq, vLLM, LiteLLM) when BaseURL is set.
type OpenAIProvider struct {
	name       string
	client     openai.Client
	embedModel string
	chatModel  string
	dim        int
}

func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%s api key missing", nameOr(opts.Name, "openai"))
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	// Retries are handled by retry.Do and the workflow retry policy.
	reqOpts = append(reqOpts, option.WithMaxRetries(0))
	p := &OpenAIProvider{
		name:       nameOr(opts.Name, "openai"),
		client:     openai.NewClient(reqOpts...),
		embedModel: opts.EmbedModel,
		chatModel:  nameOr(opts.ChatModel, DefaultOpenAIChatModel),
		dim:        opts.Dimension,
	}
	return p, nil
}

func nameOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (o *OpenAIProvider) Name() string { return o.name }

// Model is the embedding model id. The requested dimension is part of it
// because truncated vectors live in a different space.
func (o *OpenAIProvider) Model() string {
	if o.dim > 0 {
		return fmt.Sprintf("%s/%s@%d", o.name, o.embedModel, o.dim)
	}
	return o.name + "/" + o.embedModel
}

func (o *OpenAIProvider) ChatModel() string { return o.name + "/" + o.chatModel }

func (o *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if o.embedModel == "" {
		return nil, fmt.Errorf("%w: %s has no embedding model configured", util.ErrPermanent, o.name)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxOpenAIBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds %d", util.ErrPermanent, len(texts), maxOpenAIBatch)
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if o.dim > 0 {
		params.Dimensions = openai.Int(int64(o.dim))
	}
	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, Tag(fmt.Errorf("%s embeddings: %w", o.name, err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d inputs", util.ErrTransient, o.name, len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("%w: %s returned embedding index %d", util.ErrTransient, o.name, d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Chat returns a Generator view of the provider, named by its chat model.
func (o *OpenAIProvider) Chat() Generator { return openAIChat{o} }

type openAIChat struct{ p *OpenAIProvider }

func (c openAIChat) Model() string { return c.p.ChatModel() }

func (c openAIChat) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	o := c.p
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt = prompt + "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	system := req.System
	if system == "" {
		system = "You answer questions using only the supplied document excerpts and cite them."
	}
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return GenerateResponse{}, Tag(fmt.Errorf("%s chat: %w", o.name, err))
	}
	if len(completion.Choices) == 0 {
		return GenerateResponse{}, fmt.Errorf("%w: %s returned no choices", util.ErrTransient, o.name)
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return GenerateResponse{}, fmt.Errorf("%w: %s returned empty content", util.ErrTransient, o.name)
	}
	return GenerateResponse{Text: text, Model: c.Model(), Provider: o.name}, nil
}
