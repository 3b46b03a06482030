package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/maheshrc27/reelsync/internal/transfer"
	"github.com/maheshrc27/reelsync/pkg/utils"
	"google.golang.org/api/option"
)

const (
	maxHeuristicTitleRunes = 80
	maxTitleRunes          = 100
)

const summaryPrompt = `You turn Instagram captions into YouTube metadata.
Given the caption below, write a short title (5-10 words) with no hashtags and a 1-2 sentence
description capturing the essence of the post. Keep emojis and hashtags only in the description.

Caption:
%s

Respond in JSON with keys "title" and "description".`

// TextGenerator produces a JSON document for a prompt.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type SummarizerService interface {
	Summarize(ctx context.Context, caption string) (title, description string)
}

type summarizerService struct {
	remote TextGenerator
}

// NewSummarizerService uses remote when it is non-nil and falls back to the
// local heuristic on any remote failure.
func NewSummarizerService(remote TextGenerator) SummarizerService {
	return &summarizerService{remote: remote}
}

func (s *summarizerService) Summarize(ctx context.Context, caption string) (string, string) {
	if s.remote != nil && strings.TrimSpace(caption) != "" {
		title, description, err := s.summarizeRemote(ctx, caption)
		if err == nil {
			return title, description
		}
		slog.Warn("remote summary failed, using heuristic", "error", err)
	}
	return HeuristicSummary(caption)
}

func (s *summarizerService) summarizeRemote(ctx context.Context, caption string) (string, string, error) {
	raw, err := s.remote.GenerateJSON(ctx, fmt.Sprintf(summaryPrompt, caption))
	if err != nil {
		return "", "", err
	}

	var resp transfer.SummaryResponse
	if err := json.Unmarshal([]byte(cleanJSONBlock(raw)), &resp); err != nil {
		return "", "", fmt.Errorf("invalid summary response: %w", err)
	}

	title := utils.TruncateRunes(utils.CollapseWhitespace(utils.StripHashtags(resp.Title)), maxTitleRunes)
	if title == "" {
		return "", "", fmt.Errorf("summary response has no title")
	}
	description := strings.TrimSpace(resp.Description)
	if description == "" {
		description = utils.CollapseWhitespace(caption)
	}
	return title, description, nil
}

// HeuristicSummary derives a title from the first sentence of the caption without
// hashtags and uses the whitespace-collapsed caption as description.
func HeuristicSummary(caption string) (string, string) {
	clean := utils.CollapseWhitespace(caption)
	if clean == "" {
		return "", ""
	}

	title := utils.StripHashtags(clean)
	if i := strings.IndexAny(title, ".!?"); i >= 0 {
		title = title[:i+1]
	}
	title = utils.CollapseWhitespace(title)
	title = strings.TrimSpace(utils.TruncateRunes(title, maxHeuristicTitleRunes))
	return title, clean
}

func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(256)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in response")
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
