package port

import (
	"context"

	"arxiv-digest/internal/domain"
)

// PaperSource (采集器): 根据 topic 代码 (如 "cs") 获取当天新论文
// 可以是 arXiv 列表页爬虫、RSS，也可以是本地 JSONL 文件
type PaperSource interface {
	FetchPapers(ctx context.Context, topic string) ([]domain.Paper, error)
}

// GenerationRequest 一次文本生成请求
type GenerationRequest struct {
	Prompt      string
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// TextGenerator (鉴定师): 调用 LLM 生成文本
// 实现需要把限流/临时故障包装成 common.ErrCodeTransientProvider,
// 提示过长包装成 common.ErrCodePromptTooLong，其余为致命错误
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Summarizer (摘要员): 为单篇论文生成双语摘要
type Summarizer interface {
	Summarize(ctx context.Context, paper domain.Paper) (*domain.Summary, error)
}

// SummaryCache 摘要缓存，避免同一篇论文重复调用 LLM
type SummaryCache interface {
	Get(ctx context.Context, paperID string) (*domain.Summary, bool, error)
	Set(ctx context.Context, paperID string, summary *domain.Summary) error
}

// Notifier (信使): 把一次推送内容发送到某个渠道
type Notifier interface {
	Name() string
	Notify(ctx context.Context, digest *domain.Digest) error
}

// ErrorReporter 在任务失败时通知用户
type ErrorReporter interface {
	NotifyError(ctx context.Context, runErr error) error
}

// Repository (仓库管理员): 负责存储推送记录和去重
type Repository interface {
	SaveRun(ctx context.Context, run *domain.DigestRun) error
	SaveEntries(ctx context.Context, entries []*domain.PaperEntry) error

	// 判断论文是否已经推送过 (防重)
	Exists(ctx context.Context, paperID string) (bool, error)
	MarkAsNotified(ctx context.Context, paperIDs []string) error

	RecentEntries(ctx context.Context, limit int) ([]*domain.PaperEntry, error)
}

// TopicResolver 把配置里的 topic 名称解析为来源使用的代码，并校验分类
type TopicResolver interface {
	ResolveCode(topic string, categories []string) (string, error)
}

// Filter (过滤器): 打分之前的初筛
type Filter interface {
	FilterByCategories(papers []domain.Paper, categories []string) []domain.Paper
	FilterUnseen(ctx context.Context, papers []domain.Paper) ([]domain.Paper, error)
}

// Analyzer (分析师): 为选中的记录补充摘要，保持顺序
type Analyzer interface {
	Summarize(ctx context.Context, records []domain.RelevanceRecord) ([]domain.RelevanceRecord, error)
}
