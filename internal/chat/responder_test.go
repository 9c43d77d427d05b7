package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/logging"
)

func testResponder(model Model) *AIResponder {
	log := logging.New(io.Discard, "silent", "json")
	return NewAIResponder(model, log, Options{})
}

func TestGenerateResponseHappyPath(t *testing.T) {
	mock := &MockModel{
		GenerateContentFunc: func(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			return TextResponse("Gracias Ana, ¿me compartes tu correo electrónico?"), nil
		},
	}
	r := testResponder(mock)

	result := r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "me llamo Ana García"},
	}, domain.CollectedInfo{})

	assert.Equal(t, "Gracias Ana, ¿me compartes tu correo electrónico?", result.Reply)
	assert.False(t, result.NeedsHuman)
	assert.Equal(t, "Ana García", result.Info.Name)
}

func TestGenerateResponseNeedsHumanMarker(t *testing.T) {
	mock := &MockModel{
		GenerateContentFunc: func(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			return TextResponse("Entiendo tu urgencia, un agente te atenderá. [NEEDS_HUMAN]"), nil
		},
	}
	r := testResponder(mock)

	result := r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "¡esto es urgente, necesito hablar con alguien ya!"},
	}, domain.CollectedInfo{})

	assert.True(t, result.NeedsHuman)
	assert.NotContains(t, result.Reply, "[NEEDS_HUMAN]")
	assert.Equal(t, "Entiendo tu urgencia, un agente te atenderá.", result.Reply)
}

func TestGenerateResponseModelError(t *testing.T) {
	mock := &MockModel{
		GenerateContentFunc: func(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			return nil, errors.New("rate limited")
		},
	}
	r := testResponder(mock)

	result := r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "mi correo es ana@example.com"},
	}, domain.CollectedInfo{Name: "Ana"})

	assert.Equal(t, FallbackReply, result.Reply)
	assert.True(t, result.NeedsHuman)
	// Extraction still ran
	assert.Equal(t, "ana@example.com", result.Info.Email)
	assert.Equal(t, "Ana", result.Info.Name)
}

func TestGenerateResponseNilModel(t *testing.T) {
	r := testResponder(nil)

	result := r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "no puedo acceder a mi cuenta"},
	}, domain.CollectedInfo{})

	assert.Equal(t, FallbackReply, result.Reply)
	assert.True(t, result.NeedsHuman)
	assert.Equal(t, "no puedo acceder a mi cuenta", result.Info.Reason)
}

func TestGenerateResponseEmptyReply(t *testing.T) {
	mock := &MockModel{
		GenerateContentFunc: func(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			return TextResponse("[NEEDS_HUMAN]"), nil
		},
	}
	r := testResponder(mock)

	result := r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "necesito ayuda urgente por favor"},
	}, domain.CollectedInfo{})

	assert.True(t, result.NeedsHuman)
	assert.Equal(t, emptyReply, result.Reply)
}

func TestGenerateResponseSystemContext(t *testing.T) {
	mock := &MockModel{}
	r := testResponder(mock)

	r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "soy Pedro"},
		{Role: domain.RoleAssistant, Content: "Gracias Pedro, ¿tu correo?"},
		{Role: domain.RoleUser, Content: "pedro@example.com"},
	}, domain.CollectedInfo{Name: "Pedro"})

	require.Len(t, mock.Calls, 1)
	msgs := mock.Calls[0]
	require.Len(t, msgs, 4) // system + three turns

	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	system := msgs[0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "Nombre: Pedro")
	assert.Contains(t, system, "Email: pedro@example.com")
	assert.Contains(t, system, "Motivo: ❌ NO recopilado")
	assert.NotContains(t, system, "TIENES TODA LA INFORMACIÓN")

	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)
}

func TestGenerateResponseCompleteInfoContext(t *testing.T) {
	mock := &MockModel{}
	r := testResponder(mock)

	r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "eso es todo, gracias"},
	}, domain.CollectedInfo{Name: "Pedro", Email: "pedro@example.com", Reason: "problema con la factura"})

	require.Len(t, mock.Calls, 1)
	system := mock.Calls[0][0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "TIENES TODA LA INFORMACIÓN")
}

func TestGenerateResponseCustomPrompt(t *testing.T) {
	mock := &MockModel{}
	log := logging.New(io.Discard, "silent", "json")
	r := NewAIResponder(mock, log, Options{SystemPrompt: "Eres un robot de pruebas."})

	r.GenerateResponse(context.Background(), []Turn{
		{Role: domain.RoleUser, Content: "hola, buenas tardes"},
	}, domain.CollectedInfo{})

	require.Len(t, mock.Calls, 1)
	system := mock.Calls[0][0].Parts[0].(llms.TextContent).Text
	assert.True(t, strings.HasPrefix(system, "Eres un robot de pruebas."))
}
