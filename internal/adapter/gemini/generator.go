package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/port"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultModel = "gemini-2.5-flash-lite"

// Generator 通过 Gemini 生成文本，实现 port.TextGenerator
type Generator struct {
	client       *genai.Client
	defaultModel string
}

func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "缺少 GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, common.WrapError(common.ErrCodeConfiguration, "无法创建 Gemini 客户端", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Generator{client: client, defaultModel: model}, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

func (g *Generator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	name := req.Model
	if name == "" {
		name = g.defaultModel
	}

	model := g.client.GenerativeModel(name)
	model.SetTemperature(req.Temperature)
	model.SetTopP(req.TopP)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", classifyError(err)
	}
	return responseText(resp)
}

// responseText 拼接第一个候选结果中的全部文本片段
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", common.NewError(common.ErrCodeTransientProvider, "Gemini 返回内容为空")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", common.NewError(common.ErrCodeTransientProvider, "Gemini 返回内容为空")
	}
	return sb.String(), nil
}

// classifyError 把 SDK 错误归类为临时错误、提示过长或致命错误
func classifyError(err error) error {
	if isPromptTooLong(err.Error()) {
		return common.WrapError(common.ErrCodePromptTooLong, "Gemini 提示过长", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return common.WrapError(common.ErrCodeTransientProvider, fmt.Sprintf("Gemini 暂时不可用 (%d)", apiErr.Code), err)
		}
		return common.WrapError(common.ErrCodeProvider, fmt.Sprintf("Gemini 调用失败 (%d)", apiErr.Code), err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return common.WrapError(common.ErrCodeTransientProvider, "Gemini 暂时不可用 ("+st.Code().String()+")", err)
		}
	}
	return common.WrapError(common.ErrCodeProvider, "Gemini 调用失败", err)
}

func isPromptTooLong(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "please reduce") ||
		strings.Contains(msg, "exceeds the maximum number of tokens") ||
		strings.Contains(msg, "input token count")
}
