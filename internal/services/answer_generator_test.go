package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNumbersChunksInPrompt(t *testing.T) {
	chat := &fakeChatModel{answer: "El precio es $500,000 MXN [1]."}
	g := NewAnswerGenerator(chat, 0.2, 512, 10*time.Second, nil)
	chunks := []Chunk{
		{ID: "c1", Development: "Vista Real", Text: "Lote 12: $500,000 MXN"},
		{ID: "c2", Text: "Entrega en diciembre de 2027"},
	}

	answer, err := g.Generate(context.Background(), "¿cuánto cuesta el lote 12?", chunks)

	require.NoError(t, err)
	assert.Equal(t, "El precio es $500,000 MXN [1].", answer)

	require.Len(t, chat.lastMessages, 2)
	assert.Equal(t, "system", chat.lastMessages[0].Role)
	prompt := chat.lastMessages[1].Content
	assert.Contains(t, prompt, "[1] (Vista Real) Lote 12: $500,000 MXN")
	assert.Contains(t, prompt, "[2] Entrega en diciembre de 2027")
	assert.Contains(t, prompt, "Pregunta: ¿cuánto cuesta el lote 12?")
}

func TestGenerateEmptyChunksSkipsModel(t *testing.T) {
	chat := &fakeChatModel{answer: "no debería llamarse"}
	g := NewAnswerGenerator(chat, 0.2, 512, 10*time.Second, nil)

	answer, err := g.Generate(context.Background(), "pregunta", nil)

	require.NoError(t, err)
	assert.Equal(t, InsufficientInfoAnswer, answer)
	assert.Zero(t, chat.calls)
}

func TestGenerateModelErrorIsHardFailure(t *testing.T) {
	chat := &fakeChatModel{err: errors.New("rate limited")}
	g := NewAnswerGenerator(chat, 0.2, 512, 10*time.Second, nil)

	_, err := g.Generate(context.Background(), "pregunta", []Chunk{{ID: "c1", Text: "algo"}})
	assert.Error(t, err)
}

func TestGenerateEmptyCompletionIsError(t *testing.T) {
	chat := &fakeChatModel{answer: "   "}
	g := NewAnswerGenerator(chat, 0.2, 512, 10*time.Second, nil)

	_, err := g.Generate(context.Background(), "pregunta", []Chunk{{ID: "c1", Text: "algo"}})
	assert.Error(t, err)
}
