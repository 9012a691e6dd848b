// Package answer turns ranked passages into a conversational reply through a
// chat completion model.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dgallion1/bookrag/internal/llm"
	"github.com/dgallion1/bookrag/internal/retrieval"
)

// Generator produces a completion for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	stats       *llm.Stats
}

func NewOpenAIGenerator(client *openai.Client, model string, stats *llm.Stats) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:      client,
		model:       model,
		temperature: 0.7,
		maxTokens:   500,
		stats:       stats,
	}
}

// Generate sends one chat completion request.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	g.stats.Since(llm.OpChat, start)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from chat model")
	}
	return resp.Choices[0].Message.Content, nil
}

// Reply is the outcome of Service.Answer.
type Reply struct {
	Text     string
	Passages []Passage
	Fallback bool // Text is a canned message rather than a generated answer.
}

// Service answers questions from retrieval results.
type Service struct {
	gen     Generator
	persona Persona
	log     *slog.Logger
}

// NewService creates an answer service. A nil gen answers with the
// formatted passages themselves.
func NewService(gen Generator, persona Persona, log *slog.Logger) *Service {
	return &Service{gen: gen, persona: persona, log: log}
}

// Answer replies to question using results in rank order.
func (s *Service) Answer(ctx context.Context, question string, results []retrieval.Result) Reply {
	if !retrieval.HasOverlap(results) {
		return Reply{Text: NoRelevantMessage, Fallback: true}
	}
	passages := UsablePassages(results, s.persona.AuthorName)
	if len(passages) == 0 {
		return Reply{Text: NoContextMessage, Fallback: true}
	}
	excerpts := FormatContext(passages)
	if s.gen == nil {
		return Reply{Text: excerpts, Passages: passages}
	}

	text, err := llm.Retry(ctx, s.log, "chat", func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, SystemPrompt(s.persona), UserPrompt(s.persona, question, excerpts))
	})
	if err != nil {
		s.log.Error("answer generation failed", "error", err)
		return Reply{Text: Fallback(question), Passages: passages, Fallback: true}
	}
	return Reply{Text: text, Passages: passages}
}
