package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/port"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

// Generator 通过 OpenAI 兼容接口生成文本，实现 port.TextGenerator
type Generator struct {
	client       *openai.Client
	defaultModel string
}

// NewGenerator baseURL 为空时使用官方地址
func NewGenerator(apiKey, baseURL, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "缺少 OPENAI_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Generator{client: openai.NewClientWithConfig(cfg), defaultModel: model}, nil
}

func (g *Generator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	chat := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	// 推理模型只接受 max_completion_tokens，也不支持自定义采样参数
	if isReasoningModel(model) {
		chat.MaxCompletionTokens = req.MaxTokens
	} else {
		chat.MaxTokens = req.MaxTokens
		chat.Temperature = req.Temperature
		chat.TopP = req.TopP
	}

	resp, err := g.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return "", classifyError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", common.NewError(common.ErrCodeTransientProvider, "OpenAI 返回内容为空")
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// classifyError 把 SDK 错误归类为临时错误、提示过长或致命错误
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := fmt.Sprint(apiErr.Code)
		if code == "context_length_exceeded" || strings.Contains(apiErr.Message, "Please reduce") {
			return common.WrapError(common.ErrCodePromptTooLong, "OpenAI 提示过长", err)
		}
		if isTransientStatus(apiErr.HTTPStatusCode) {
			return common.WrapError(common.ErrCodeTransientProvider, fmt.Sprintf("OpenAI 暂时不可用 (%d)", apiErr.HTTPStatusCode), err)
		}
		return common.WrapError(common.ErrCodeProvider, fmt.Sprintf("OpenAI 调用失败 (%d)", apiErr.HTTPStatusCode), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isTransientStatus(reqErr.HTTPStatusCode) {
		return common.WrapError(common.ErrCodeTransientProvider, fmt.Sprintf("OpenAI 暂时不可用 (%d)", reqErr.HTTPStatusCode), err)
	}
	return common.WrapError(common.ErrCodeProvider, "OpenAI 调用失败", err)
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
