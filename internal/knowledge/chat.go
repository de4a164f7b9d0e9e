package knowledge

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatMessage 对话消息
type ChatMessage struct {
	Role    string // system, user, assistant
	Content string
}

// ChatModel 定义语言模型补全接口
type ChatModel interface {
	Complete(ctx context.Context, messages []ChatMessage, temperature float32, maxTokens int) (string, error)
	Ready() bool
}

// OpenAIChatModel 使用OpenAI Chat Completion API
type OpenAIChatModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIChatModel 创建OpenAI聊天模型
func NewOpenAIChatModel(apiKey, model string) *OpenAIChatModel {
	apiKey = strings.TrimSpace(apiKey)
	if model == "" {
		model = "gpt-4o-mini"
	}
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &OpenAIChatModel{client: client, model: model}
}

func (m *OpenAIChatModel) Complete(ctx context.Context, messages []ChatMessage, temperature float32, maxTokens int) (string, error) {
	if m.client == nil {
		return "", errors.New("openai client not initialized")
	}
	if len(messages) == 0 {
		return "", errors.New("messages are empty")
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    chatMessages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion response empty")
	}

	return resp.Choices[0].Message.Content, nil
}

func (m *OpenAIChatModel) Ready() bool {
	return m.client != nil
}
