package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docrag/internal/blob"
	"docrag/internal/config"
	"docrag/internal/logging"
	"docrag/internal/models"
	"docrag/internal/providers"
	"docrag/internal/retry"
	"docrag/internal/util"

	"go.uber.org/zap"
)

// NoEvidenceAnswer is returned, without calling the generator, when no
// retrieved chunk fits the context.
const NoEvidenceAnswer = "No relevant evidence was found in the indexed documents for this question."

const snippetRunes = 420

type Composer struct {
	gen    providers.Generator
	links  blob.Store
	tokens TokenCounter
	cfg    config.AnswerConfig
	llm    config.LLMConfig
	retry  retry.RetryConfig
	now    func() time.Time
}

type Option func(*Composer)

func WithTokenCounter(tc TokenCounter) Option {
	return func(c *Composer) { c.tokens = tc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

func New(gen providers.Generator, links blob.Store, cfg config.AnswerConfig, llm config.LLMConfig, rc retry.RetryConfig, opts ...Option) *Composer {
	c := &Composer{gen: gen, links: links, cfg: cfg, llm: llm, retry: rc, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		tc, err := newTiktokenCounter(cfg.TokenEncoding)
		if err != nil {
			c.tokens = estimateCounter{}
		} else {
			c.tokens = tc
		}
	}
	return c
}

type admitted struct {
	chunk models.RetrievedChunk
	block string
}

// Compose writes a grounded answer over chunks, which must already be in
// rank order. Sources are exactly the chunks that made it into the prompt.
func (c *Composer) Compose(ctx context.Context, query string, chunks []models.RetrievedChunk) (models.Answer, error) {
	logger := logging.FromContext(ctx)
	in := c.admit(chunks)
	if len(in) == 0 {
		return models.Answer{Text: NoEvidenceAnswer, Sources: []models.Source{}, GeneratedAt: c.now().UTC()}, nil
	}

	sources, err := c.sources(ctx, query, in)
	if err != nil {
		return models.Answer{}, err
	}

	blocks := make([]string, len(in))
	for i, a := range in {
		blocks[i] = a.block
	}
	req := providers.GenerateRequest{
		Operation:   "rag_answer",
		System:      systemPrompt,
		Prompt:      buildPrompt(query),
		Context:     blocks,
		Temperature: c.llm.Temperature,
		MaxTokens:   c.llm.MaxTokens,
	}
	resp, err := retry.Do(ctx, c.retry, func(ctx context.Context) (providers.GenerateResponse, error) {
		r, err := c.gen.Generate(ctx, req)
		if err != nil {
			return r, err
		}
		if strings.TrimSpace(r.Text) == "" {
			return r, fmt.Errorf("%w: empty completion", util.ErrTransient)
		}
		return r, nil
	})
	if err != nil {
		logger.Warn("answer generation failed", zap.Int("chunks", len(in)), zap.Error(err))
		// %v keeps timeouts and rate limits from leaking their own type.
		return models.Answer{}, fmt.Errorf("%w: %v", util.ErrGeneration, err)
	}

	model := resp.Model
	if model == "" {
		model = c.gen.Model()
	}
	logger.Debug("answer generated", zap.String("model", model), zap.Int("sources", len(sources)))
	return models.Answer{
		Text:        strings.TrimSpace(resp.Text),
		Sources:     sources,
		Model:       model,
		GeneratedAt: c.now().UTC(),
	}, nil
}

// admit takes chunks in order while their rendered blocks fit the token
// budget and stops at the first that does not. A top chunk that is too large
// on its own is trimmed rather than dropped.
func (c *Composer) admit(chunks []models.RetrievedChunk) []admitted {
	budget := c.cfg.ContextTokens
	out := make([]admitted, 0, len(chunks))
	used := 0
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		header := blockHeader(len(out), ch.Filename, ch.Ordinal)
		block := header + ch.Text
		n := c.tokens.Count(block)
		if used+n > budget {
			if len(out) > 0 {
				break
			}
			var ok bool
			if block, n, ok = c.trimToFit(header, ch.Text, budget); !ok {
				break
			}
		}
		used += n
		out = append(out, admitted{chunk: ch, block: block})
	}
	return out
}

// trimToFit cuts text until header+text fits budget. Token boundaries can
// merge across the join, so the rendered block is re-counted.
func (c *Composer) trimToFit(header, text string, budget int) (string, int, bool) {
	for room := budget - c.tokens.Count(header); room > 0; room-- {
		trimmed := strings.TrimSpace(c.tokens.Trim(text, room))
		if trimmed == "" {
			return "", 0, false
		}
		block := header + trimmed
		if n := c.tokens.Count(block); n <= budget {
			return block, n, true
		}
	}
	return "", 0, false
}

func (c *Composer) sources(ctx context.Context, query string, in []admitted) ([]models.Source, error) {
	out := make([]models.Source, 0, len(in))
	for _, a := range in {
		url, exp, err := c.links.DownloadURL(ctx, a.chunk.Locator)
		if err != nil {
			return nil, fmt.Errorf("download reference for %s: %w", a.chunk.DocumentID, err)
		}
		out = append(out, models.Source{
			DocumentID:  a.chunk.DocumentID,
			Filename:    a.chunk.Filename,
			Ordinal:     a.chunk.Ordinal,
			DownloadURL: url,
			ExpiresAt:   exp,
			Score:       a.chunk.Score,
			Snippet:     util.EvidenceSnippet(a.chunk.Text, query, snippetRunes),
		})
	}
	return out, nil
}
