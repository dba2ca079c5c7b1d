package relevancy

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/metrics"
	"arxiv-digest/internal/port"
)

const (
	defaultTokensPerPaper = 128
	defaultTemperature    = 0.4
	defaultTopP           = 1.0
	defaultMaxRetries     = 3
	defaultRetryDelay     = 2 * time.Second

	// promptShrinkFactor 提示过长时把回复预算缩到原来的 80%
	promptShrinkFactor = 0.8
)

// Query 一次打分请求的参数
type Query struct {
	Interest  string
	Threshold int
	BatchSize int
	Model     string
	// Sort 为 true 时按分数降序稳定排序
	Sort bool
}

// ScorerOption 配置 Scorer
type ScorerOption func(*Scorer)

// WithTokensPerPaper 每篇论文分配的回复 token 数
func WithTokensPerPaper(n int) ScorerOption {
	return func(s *Scorer) {
		if n > 0 {
			s.tokensPerPaper = n
		}
	}
}

// WithSampling 设置 temperature 和 top_p
func WithSampling(temperature, topP float32) ScorerOption {
	return func(s *Scorer) {
		s.temperature = temperature
		s.topP = topP
	}
}

// WithRetry 设置同一批次的重试次数和初始等待
func WithRetry(maxRetries int, initialDelay time.Duration) ScorerOption {
	return func(s *Scorer) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if initialDelay > 0 {
			s.retryDelay = initialDelay
		}
	}
}

// WithMetrics 记录批次指标
func WithMetrics(rec *metrics.Recorder) ScorerOption {
	return func(s *Scorer) {
		s.metrics = rec
	}
}

// Scorer 按批次调用模型给论文打分
type Scorer struct {
	generator port.TextGenerator
	encoder   *PromptEncoder

	tokensPerPaper int
	temperature    float32
	topP           float32
	maxRetries     int
	retryDelay     time.Duration
	metrics        *metrics.Recorder
}

// NewScorer 创建打分器
func NewScorer(generator port.TextGenerator, encoder *PromptEncoder, opts ...ScorerOption) *Scorer {
	s := &Scorer{
		generator:      generator,
		encoder:        encoder,
		tokensPerPaper: defaultTokensPerPaper,
		temperature:    defaultTemperature,
		topP:           defaultTopP,
		maxRetries:     defaultMaxRetries,
		retryDelay:     defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score 按顺序逐批打分。任何一个批次失败都会中止整次打分，不返回部分结果。
func (s *Scorer) Score(ctx context.Context, papers []domain.Paper, q Query) (*domain.ScoringResult, error) {
	if q.BatchSize <= 0 {
		return nil, common.NewError(common.ErrCodeConfiguration, "batch size 必须大于 0")
	}

	result := &domain.ScoringResult{}
	total := (len(papers) + q.BatchSize - 1) / q.BatchSize

	for start, n := 0, 1; start < len(papers); start, n = start+q.BatchSize, n+1 {
		end := min(start+q.BatchSize, len(papers))
		batch := papers[start:end]

		records, truncated, err := s.scoreBatch(ctx, batch, q)
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d failed: %w", n, total, err)
		}
		if truncated {
			log.Printf("⚠️ 第 %d/%d 批只解析出部分结果，可能存在幻觉", n, total)
			s.metrics.RecordHallucination()
			result.Hallucinated = true
		}
		result.Records = append(result.Records, records...)
	}

	if q.Sort {
		sort.SliceStable(result.Records, func(i, j int) bool {
			return result.Records[i].Score > result.Records[j].Score
		})
	}
	return result, nil
}

func (s *Scorer) scoreBatch(ctx context.Context, batch []domain.Paper, q Query) ([]domain.RelevanceRecord, bool, error) {
	prompt, err := s.encoder.Encode(q.Interest, batch)
	if err != nil {
		return nil, false, err
	}

	req := port.GenerationRequest{
		Prompt:      prompt,
		Model:       q.Model,
		Temperature: s.temperature,
		TopP:        s.topP,
		MaxTokens:   s.tokensPerPaper * len(batch),
	}

	began := time.Now()
	var reply string
	err = common.Do(ctx, func() error {
		var genErr error
		reply, genErr = s.generator.Generate(ctx, req)
		return genErr
	},
		common.WithMaxRetries(s.maxRetries),
		common.WithInitialDelay(s.retryDelay),
		common.WithRetryIf(common.IsRetryable),
		common.WithOnRetry(func(attempt int, err error) {
			s.metrics.RecordRetry()
			if common.HasCode(err, common.ErrCodePromptTooLong) {
				req.MaxTokens = int(float64(req.MaxTokens) * promptShrinkFactor)
				log.Printf("✂️ 提示过长，回复预算缩减到 %d tokens (第 %d 次重试)", req.MaxTokens, attempt)
				return
			}
			log.Printf("⏳ 模型暂时不可用，第 %d 次重试: %v", attempt, err)
		}),
	)
	if err != nil {
		s.metrics.RecordBatch(metrics.StatusFailed, 0, 0, time.Since(began))
		return nil, false, err
	}
	log.Printf("⏱️ request took %.2fs", time.Since(began).Seconds())

	parseBegan := time.Now()
	records, truncated, err := ParseResponse(reply, batch, q.Threshold)
	if err != nil {
		s.metrics.RecordBatch(metrics.StatusFailed, 0, 0, time.Since(began))
		return nil, false, err
	}
	log.Printf("⏱️ post-processing took %.2fs", time.Since(parseBegan).Seconds())

	s.metrics.RecordBatch(metrics.StatusOK, len(batch), len(records), time.Since(began))
	return records, truncated, nil
}
