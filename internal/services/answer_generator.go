package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/inmohub/backend-go/internal/errors"
	"github.com/inmohub/backend-go/internal/knowledge"
	"go.uber.org/zap"
)

// InsufficientInfoAnswer 检索为空或证据不足时返回的固定回答
const InsufficientInfoAnswer = "No cuento con información suficiente para responder esa pregunta. " +
	"Te recomiendo contactar directamente a un asesor para obtener los detalles."

const answerSystemPrompt = `Eres un asesor inmobiliario profesional que responde preguntas sobre desarrollos en México.

Reglas:
1. Responde SOLO con la información de los fragmentos numerados que se te proporcionan.
2. Cada afirmación de hecho (precios, medidas, amenidades, fechas) debe llevar la cita del fragmento que la respalda, en formato [n].
3. Si los fragmentos no contienen la respuesta, dilo claramente y no inventes datos.
4. Responde en español, en tono cordial y directo.`

// AnswerGenerator 把检索到的块拼成提示词，调用聊天模型生成带引用的回答
type AnswerGenerator struct {
	chat        knowledge.ChatModel
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewAnswerGenerator 创建回答生成器
func NewAnswerGenerator(chat knowledge.ChatModel, temperature float64, maxTokens int, timeout time.Duration, logger *zap.Logger) *AnswerGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AnswerGenerator{
		chat:        chat,
		temperature: float32(temperature),
		maxTokens:   maxTokens,
		timeout:     timeout,
		logger:      logger,
	}
}

// Generate 基于块生成回答。模型调用失败是硬失败，由调用方翻译成用户可见错误。
// 块列表为空时不调用模型，直接返回固定回答。
func (g *AnswerGenerator) Generate(ctx context.Context, question string, chunks []Chunk) (string, error) {
	if len(chunks) == 0 {
		return InsufficientInfoAnswer, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := []knowledge.ChatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: buildAnswerPrompt(question, chunks)},
	}

	answer, err := g.chat.Complete(ctx, messages, g.temperature, g.maxTokens)
	if err != nil {
		g.logger.Error("Answer generation failed", zap.Error(err))
		return "", apperrors.NewExternalError(apperrors.ErrCodeUpstreamUnavailable, "chat completion failed").WithCause(err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", apperrors.NewExternalError(apperrors.ErrCodeUpstreamUnavailable, "chat completion returned empty answer")
	}
	return answer, nil
}

// buildAnswerPrompt 块按检索顺序编号，编号即引用标记
func buildAnswerPrompt(question string, chunks []Chunk) string {
	var sb strings.Builder
	sb.WriteString("Fragmentos de contexto:\n\n")
	for i, chunk := range chunks {
		sb.WriteString(fmt.Sprintf("[%d] ", i+1))
		if chunk.Development != "" {
			sb.WriteString("(" + chunk.Development + ") ")
		}
		sb.WriteString(strings.TrimSpace(chunk.Text))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Pregunta: ")
	sb.WriteString(strings.TrimSpace(question))
	return sb.String()
}
