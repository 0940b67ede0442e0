// internal/ai/openai.go
package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const refineSystemPrompt = `You rewrite short requests into prompts for a text-to-video model.
Keep the subject and intent of the request. Describe the action, setting and camera in one or two sentences.
Answer with the prompt only, no quotes and no commentary. Stay under 400 characters.`

type Service struct {
	client     *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
}

func NewService(apiKey string) *Service {
	return NewServiceWithConfig(openai.DefaultConfig(apiKey))
}

// NewServiceWithConfig builds a service against a custom endpoint.
func NewServiceWithConfig(cfg openai.ClientConfig) *Service {
	return &Service{
		client:     openai.NewClientWithConfig(cfg),
		chatModel:  openai.GPT4oMini,
		embedModel: openai.AdaEmbeddingV2,
	}
}

// RefinePrompt asks the chat model to expand prompt into a richer video
// description.
func (s *Service) RefinePrompt(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: refineSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
