package summarizer

import (
	"bytes"
	_ "embed"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/metrics"
	"arxiv-digest/internal/port"
)

//go:embed prompts/summary_prompt.txt
var promptText string

var promptTemplate = template.Must(template.New("summary").Parse(promptText))

// 摘要失败时的占位文本
const (
	FallbackEnglish  = "(Summary generation failed)"
	FallbackJapanese = "（要約生成に失敗しました）"
)

// 指标里的摘要来源
const (
	SourceCache    = "cache"
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Fallback 返回失败占位摘要
func Fallback() *domain.Summary {
	return &domain.Summary{English: FallbackEnglish, Japanese: FallbackJapanese}
}

// LLMSummarizer 实现了 port.Summarizer 接口
type LLMSummarizer struct {
	generator port.TextGenerator
	cache     port.SummaryCache
	metrics   *metrics.Recorder

	model       string
	temperature float32
	maxTokens   int
	maxRetries  int
	retryDelay  time.Duration
}

type Option func(*LLMSummarizer)

// WithCache 可选的摘要缓存，nil 表示不缓存
func WithCache(c port.SummaryCache) Option {
	return func(s *LLMSummarizer) {
		s.cache = c
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(s *LLMSummarizer) {
		s.metrics = m
	}
}

func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *LLMSummarizer) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

func New(generator port.TextGenerator, model string, opts ...Option) *LLMSummarizer {
	s := &LLMSummarizer{
		generator:   generator,
		model:       model,
		temperature: 0.3,
		maxTokens:   1200,
		maxRetries:  2,
		retryDelay:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize 生成失败不会返回错误，而是返回占位摘要，让推送继续
// 只有 ctx 被取消时才返回错误
func (s *LLMSummarizer) Summarize(ctx context.Context, paper domain.Paper) (*domain.Summary, error) {
	if s.cache != nil && paper.ID != "" {
		cached, ok, err := s.cache.Get(ctx, paper.ID)
		if err != nil {
			log.Printf("⚠️ 读取摘要缓存失败 %s: %v", paper.ID, err)
		} else if ok {
			s.metrics.RecordSummary(SourceCache)
			return cached, nil
		}
	}

	summary, err := s.generate(ctx, paper)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Printf("❌ 摘要生成失败 %s: %v", paper.ID, err)
		s.metrics.RecordSummary(SourceFallback)
		return Fallback(), nil
	}
	s.metrics.RecordSummary(SourceModel)

	if s.cache != nil && paper.ID != "" {
		if err := s.cache.Set(ctx, paper.ID, summary); err != nil {
			log.Printf("⚠️ 写入摘要缓存失败 %s: %v", paper.ID, err)
		}
	}
	return summary, nil
}

func (s *LLMSummarizer) generate(ctx context.Context, paper domain.Paper) (*domain.Summary, error) {
	prompt, err := buildPrompt(paper)
	if err != nil {
		return nil, err
	}

	req := port.GenerationRequest{
		Prompt:      prompt,
		Model:       s.model,
		Temperature: s.temperature,
		TopP:        1.0,
		MaxTokens:   s.maxTokens,
	}

	var raw string
	err = common.Do(ctx, func() error {
		var genErr error
		raw, genErr = s.generator.Generate(ctx, req)
		return genErr
	},
		common.WithMaxRetries(s.maxRetries),
		common.WithInitialDelay(s.retryDelay),
		common.WithRetryIf(func(err error) bool {
			return common.HasCode(err, common.ErrCodeTransientProvider)
		}),
	)
	if err != nil {
		return nil, err
	}
	return ParseSummary(raw)
}

func buildPrompt(paper domain.Paper) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, paper); err != nil {
		return "", fmt.Errorf("构建摘要提示词失败: %w", err)
	}
	return buf.String(), nil
}

// ParseSummary 从回复中抠出第一个 { 到最后一个 } 之间的 JSON。
// 回复里没有 JSON 时整段作为英文摘要；有花括号却解析失败时返回错误
func ParseSummary(raw string) (*domain.Summary, error) {
	content := strings.TrimSpace(raw)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return &domain.Summary{English: content}, nil
	}

	var s domain.Summary
	if err := json.Unmarshal([]byte(content[start:end+1]), &s); err != nil {
		return nil, common.WrapError(common.ErrCodeResponseFormat,
			fmt.Sprintf("摘要 JSON 解析失败 | 原文: %s", content), err)
	}
	return &s, nil
}
