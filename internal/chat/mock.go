package chat

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// MockModel is a test double for Model.
type MockModel struct {
	GenerateContentFunc func(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)

	// Calls records every message batch passed in.
	Calls [][]llms.MessageContent
}

func (m *MockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.Calls = append(m.Calls, messages)
	if m.GenerateContentFunc != nil {
		return m.GenerateContentFunc(ctx, messages, options...)
	}
	return TextResponse("respuesta simulada"), nil
}

// TextResponse wraps plain text in the single-choice response shape the
// responder reads.
func TextResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}
