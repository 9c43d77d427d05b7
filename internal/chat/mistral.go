package chat

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/mistral"
)

// NewMistralModel builds a langchaingo Mistral client. Returns (nil, nil)
// when no API key is configured; the responder then answers with the canned
// fallback instead of failing.
func NewMistralModel(apiKey, modelName string) (Model, error) {
	if apiKey == "" {
		return nil, nil
	}

	m, err := mistral.New(
		mistral.WithAPIKey(apiKey),
		mistral.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("creating mistral client: %w", err)
	}
	return m, nil
}
