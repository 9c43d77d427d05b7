// Package chat generates assistant replies for visitor conversations: a
// Mistral-backed receptionist that collects contact details and flags
// conversations for human takeover.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/underla/helpdesk/internal/domain"
	"github.com/underla/helpdesk/internal/logging"
)

// needsHumanMarker is the token the model appends when the visitor should be
// handed to a human agent. It is stripped from the visible reply.
const needsHumanMarker = "[NEEDS_HUMAN]"

// FallbackReply is sent when the model is unavailable or errors out.
const FallbackReply = "Gracias por contactarnos. Tu mensaje ha sido registrado y un agente te contactará lo antes posible."

// emptyReply covers a model response that is blank after marker stripping.
const emptyReply = "Gracias por tu mensaje. Un agente te contactará pronto."

const receptionistPrompt = `Eres un asistente de recepción virtual para JAdmin. Tu ÚNICO objetivo es recopilar información del visitante de manera amable y profesional.

## REGLAS DE ORO (ESTRICTAS)
1. Responde SIEMPRE en español.
2. Sé conciso (máximo 2-3 oraciones por respuesta).
3. NO des información técnica ni soluciones bajo ninguna circunstancia.
4. Si el usuario se frustra o muestra urgencia, añade exactamente al final de tu respuesta: [NEEDS_HUMAN]
5. Mantén un tono cálido, profesional y natural. NO uses listas ni bullets en tus respuestas.
6. NO repitas preguntas si ya tienes la información o si acabas de preguntar lo mismo.
7. PROHIBIDO preguntar "¿Hay algo más?" o "¿En qué más puedo ayudarte?". Una vez que tengas el motivo (o tras un par de intentos), despídete indicando que un agente revisará el caso. NO abras la puerta a más preguntas.

## INFORMACIÓN A RECOPILAR (en orden de prioridad)
1. **Nombre completo** - Cómo se llama el visitante.
2. **Correo electrónico** - Para dar seguimiento.
3. **Motivo de la consulta** - Un breve resumen de por qué contactan.

## FLUJO DE CONVERSACIÓN
### Si NO tienes el NOMBRE:
- Saluda amablemente y pregunta por su nombre.

### Si tienes NOMBRE pero NO tienes EMAIL:
- Agradece y usa su nombre. Pídele su correo electrónico para que un técnico pueda contactarle.

### Si tienes NOMBRE y EMAIL pero NO tienes MOTIVO:
- Agradece y pregunta brevemente el motivo de su consulta.

### Si tienes los 3 DATOS válidos (nombre, email y motivo) O si el usuario ya explicó su problema:
- Agradece, indica que hemos recibido la información y dile que un agente humano revisará su caso pronto.
- Despídete. NO preguntes si necesitan algo más.`

// Turn is one user or assistant message in the in-memory history handed to
// the responder.
type Turn struct {
	Role    domain.Role
	Content string
}

// Result is the outcome of one responder turn. Info carries the collected
// fields after extraction, whether or not the model call succeeded.
type Result struct {
	Reply      string
	NeedsHuman bool
	Info       domain.CollectedInfo
}

// Responder produces the assistant's next reply. Implementations never
// return an error: failures degrade to a canned reply with NeedsHuman set.
type Responder interface {
	GenerateResponse(ctx context.Context, history []Turn, prior domain.CollectedInfo) Result
}

// Model is the slice of langchaingo's llms.Model the responder needs.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Options tunes the AI responder.
type Options struct {
	// SystemPrompt overrides the built-in receptionist prompt.
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// AIResponder implements Responder on a chat model. A nil model (no API key
// configured) is valid and always answers with the canned fallback.
type AIResponder struct {
	model       Model
	log         *logging.Logger
	prompt      string
	maxTokens   int
	temperature float64
}

// NewAIResponder creates a responder over the given model.
func NewAIResponder(model Model, log *logging.Logger, opts Options) *AIResponder {
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = receptionistPrompt
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	return &AIResponder{
		model:       model,
		log:         log.Sub("chat"),
		prompt:      prompt,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// GenerateResponse extracts contact info from the latest visitor message,
// then asks the model for the next reply. Any model failure yields the
// canned fallback with NeedsHuman set; extraction results are kept either
// way.
func (r *AIResponder) GenerateResponse(ctx context.Context, history []Turn, prior domain.CollectedInfo) Result {
	lastUser := lastUserMessage(history)
	info := ExtractInfo(lastUser, prior)
	info = captureReason(lastUser, info)

	if r.model == nil {
		return Result{Reply: FallbackReply, NeedsHuman: true, Info: info}
	}

	msgs := make([]llms.MessageContent, 0, len(history)+1)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, r.systemContext(info)))
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == domain.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, turn.Content))
	}

	resp, err := r.model.GenerateContent(ctx, msgs,
		llms.WithMaxTokens(r.maxTokens),
		llms.WithTemperature(r.temperature),
	)
	if err != nil || resp == nil || len(resp.Choices) == 0 {
		r.log.Error().Err(err).Msg("model call failed, using fallback reply")
		return Result{Reply: FallbackReply, NeedsHuman: true, Info: info}
	}

	text := resp.Choices[0].Content
	needsHuman := strings.Contains(text, needsHumanMarker)
	reply := strings.TrimSpace(strings.ReplaceAll(text, needsHumanMarker, ""))
	if reply == "" {
		reply = emptyReply
	}

	return Result{Reply: reply, NeedsHuman: needsHuman, Info: info}
}

// systemContext appends the current collection state to the prompt so the
// model knows which field to ask for next.
func (r *AIResponder) systemContext(info domain.CollectedInfo) string {
	var b strings.Builder
	b.WriteString(r.prompt)
	b.WriteString("\n\n## ESTADO ACTUAL DE RECOPILACIÓN")
	fmt.Fprintf(&b, "\n - Nombre: %s", orMissing(info.Name))
	fmt.Fprintf(&b, "\n - Email: %s", orMissing(info.Email))
	fmt.Fprintf(&b, "\n - Motivo: %s", orMissing(info.Reason))

	if info.Complete() {
		b.WriteString("\n\n✅ TIENES TODA LA INFORMACIÓN. Despídete indicando que hemos recibido la consulta y un agente contactará pronto. NO preguntes si necesitan algo más. TERMINA LA CONVERSACIÓN AQUÍ.")
	}
	return b.String()
}

func orMissing(s string) string {
	if s == "" {
		return "❌ NO recopilado"
	}
	return s
}

func lastUserMessage(history []Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
