package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"ReviewGuard/internal/config"
	"ReviewGuard/internal/domain"
	"ReviewGuard/internal/ports"
)

const (
	cacheKeyRunes   = 100
	promptTextRunes = 300
	systemPrompt    = "You are a concise, helpful assistant. You speak in plain English, avoiding jargon."
)

// Explainer implements ports.Explainer on top of an OpenAI-compatible chat
// completions API, trying each configured model in order.
type Explainer struct {
	endpoint   string
	apiKey     string
	models     []string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *slog.Logger
}

var _ ports.Explainer = (*Explainer)(nil)

// NewExplainer builds an explainer from configuration.
func NewExplainer(cfg config.ExplainerConfig, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CacheTTL.Std()
	if ttl <= 0 {
		ttl = time.Hour
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &Explainer{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		models:     cfg.Models,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache.New(ttl, 2*ttl),
		logger:     logger,
	}
}

// Explain returns a one-sentence explanation. When every model fails the
// caller still gets a canned sentence, which is not cached.
func (e *Explainer) Explain(ctx context.Context, req ports.ExplainRequest) (string, error) {
	if e == nil {
		return "", fmt.Errorf("llm explainer is nil")
	}
	if e.apiKey == "" || e.endpoint == "" || len(e.models) == 0 {
		return "", fmt.Errorf("llm explainer misconfigured")
	}

	key := cacheKey(req)
	if cached, ok := e.cache.Get(key); ok {
		return cached.(string), nil
	}

	prompt := promptFor(req)
	for _, model := range e.models {
		text, err := e.complete(ctx, model, prompt)
		if err != nil {
			e.logger.Warn("explanation model failed", "model", model, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		e.cache.SetDefault(key, text)
		return text, nil
	}

	return fallbackSentence(req.Label), nil
}

func (e *Explainer) complete(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.8,
		"max_tokens":  60,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", "ReviewGuard")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("completion error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("completion returned empty content")
	}
	return text, nil
}

func promptFor(req ports.ExplainRequest) string {
	certainty := fmt.Sprintf("%.0f%%", req.Confidence*100)

	var instruction string
	switch domain.Label(req.Label) {
	case domain.LabelFake:
		instruction = fmt.Sprintf("You are a helpful shopping assistant. This review is flagged as FAKE (%s certainty). "+
			"Explain why in 1 simple, conversational sentence. "+
			"Point out what feels off, like generic wording, repeated words or an advertising tone. "+
			"Don't use bullet points. Speak naturally.", certainty)
	case domain.LabelBot:
		instruction = fmt.Sprintf("You are a helpful moderator. This comment looks like it was written by a BOT (%s certainty). "+
			"Explain why in 1 simple, conversational sentence. "+
			"Point out spam-like patterns such as links, urgency or copy-paste phrasing. "+
			"Don't use bullet points. Speak naturally.", certainty)
	case domain.LabelHuman:
		instruction = fmt.Sprintf("You are a helpful moderator. This comment looks HUMAN-written (%s certainty). "+
			"Explain why in 1 simple, conversational sentence. "+
			"Mention personal tone or context that an automated account would not add. "+
			"Don't use bullet points. Speak naturally.", certainty)
	default:
		instruction = fmt.Sprintf("You are a helpful shopping assistant. This review looks GENUINE (%s certainty). "+
			"Explain why in 1 simple, conversational sentence. "+
			"Mention specific details or balanced pros and cons that feel real. "+
			"Don't use bullet points. Speak naturally.", certainty)
	}

	return instruction + "\n\nTEXT:\n" + truncateRunes(req.Text, promptTextRunes)
}

func fallbackSentence(label string) string {
	switch domain.Label(label) {
	case domain.LabelFake:
		return "AI is busy right now, but this review shows clear signs of being fake."
	case domain.LabelBot:
		return "AI is busy right now, but this comment shows clear signs of automation."
	case domain.LabelHuman:
		return "AI is busy right now, but this comment reads like a real person wrote it."
	default:
		return "AI is busy right now, but this review shows clear signs of being real."
	}
}

func cacheKey(req ports.ExplainRequest) string {
	return fmt.Sprintf("%s|%.4f|%s", req.Label, req.Confidence, truncateRunes(req.Text, cacheKeyRunes))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
