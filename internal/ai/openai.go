package ai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/roundtable-games/roundtable/internal/config"
	"github.com/roundtable-games/roundtable/internal/logging"
	"github.com/roundtable-games/roundtable/internal/orchestrator"
)

const systemPrompt = "You are a player in a social deduction game played around a table. " +
	"Stay in character, keep replies short and never reveal that you are an AI."

// OpenAIProvider generates utterances with the chat completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *logging.Logger
}

var _ orchestrator.ReasoningProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider using apiKey. cfg.BaseURL, when set,
// points the client at a compatible server.
func NewOpenAIProvider(apiKey string, cfg config.ProviderConfig, logger *logging.Logger) *OpenAIProvider {
	if logger == nil {
		logger = logging.NopLogger()
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger.WithPhase("openai"),
	}
}

// Generate asks the model what participantID says in phase.
func (p *OpenAIProvider) Generate(ctx context.Context, gameID, participantID, phase, hint string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(participantID, phase, hint)},
		},
		Temperature: p.temperature,
		User:        participantID,
	}
	if p.maxTokens > 0 {
		req.MaxCompletionTokens = p.maxTokens
	}

	p.logger.Debug("generating", "game_id", gameID, "participant_id", participantID, "phase", phase)
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	p.logger.Debug("generated",
		"game_id", gameID,
		"participant_id", participantID,
		"finish_reason", resp.Choices[0].FinishReason,
		"tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

func userPrompt(participantID, phase, hint string) string {
	if phase == orchestrator.DecisionPhase {
		return fmt.Sprintf("You are participant %s. %s Reply with the participant id only.", participantID, hint)
	}
	return fmt.Sprintf("You are participant %s. Current phase: %s. %s", participantID, phase, hint)
}
