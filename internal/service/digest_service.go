package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/metrics"
	"arxiv-digest/internal/port"
	"arxiv-digest/internal/relevancy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Scorer 相关性打分，由 relevancy.Scorer 实现
type Scorer interface {
	Score(ctx context.Context, papers []domain.Paper, q relevancy.Query) (*domain.ScoringResult, error)
}

// Options 一次推送任务的参数
type Options struct {
	Topic      string
	Categories []string
	Interest   string
	Threshold  int
	MaxPapers  int
	BatchSize  int
	Model      string
	SkipSeen   bool
}

// Deps 推送任务用到的组件，Analyzer / Repository 为 nil 时跳过对应步骤
type Deps struct {
	Topics    port.TopicResolver
	Source    port.PaperSource
	Filter    port.Filter
	Scorer    Scorer
	Analyzer  port.Analyzer
	Repo      port.Repository
	Notifiers []port.Notifier
	Reporters []port.ErrorReporter
	Metrics   *metrics.Recorder
}

// DigestService 处理一次推送的完整流程
type DigestService struct {
	deps    Deps
	opts    Options
	nowFunc func() time.Time
	newID   func() string
}

// NewDigestService 创建新的推送服务
func NewDigestService(deps Deps, opts Options) *DigestService {
	return &DigestService{
		deps:    deps,
		opts:    opts,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// Run 执行一次推送；任何致命错误都会记录失败的运行并通知错误渠道
func (s *DigestService) Run(ctx context.Context) (*domain.Digest, error) {
	run := &domain.DigestRun{
		ID:         s.newID(),
		Topic:      s.opts.Topic,
		Categories: strings.Join(s.opts.Categories, "; "),
		Status:     domain.RunStatusRunning,
		StartedAt:  s.nowFunc(),
	}
	fmt.Printf("🚀 [推送任务 %s] 开始生成 %s 的论文推送...\n", run.ID, s.opts.Topic)
	s.saveRun(ctx, run)

	digest, err := s.execute(ctx, run)

	finished := s.nowFunc()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		log.Printf("❌ 推送任务失败: %v", err)

		// ctx 可能已经超时，收尾操作使用独立的期限
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		s.saveRun(cleanupCtx, run)
		s.reportError(cleanupCtx, err)
		return nil, err
	}

	run.Status = domain.RunStatusSucceeded
	s.saveRun(ctx, run)
	fmt.Printf("🎉 推送任务完成，共推送 %d 篇论文 (耗时 %s)\n", len(digest.Records), finished.Sub(run.StartedAt).Round(time.Millisecond))
	return digest, nil
}

func (s *DigestService) execute(ctx context.Context, run *domain.DigestRun) (*domain.Digest, error) {
	// 1. 解析 topic
	code, err := s.deps.Topics.ResolveCode(s.opts.Topic, s.opts.Categories)
	if err != nil {
		return nil, err
	}

	// 2. 采集 + 分类初筛
	fmt.Printf("📥 正在抓取 %s (%s) 的新论文...\n", s.opts.Topic, code)
	papers, err := s.deps.Source.FetchPapers(ctx, code)
	if err != nil {
		return nil, err
	}
	fmt.Printf("✅ 成功获取 %d 篇论文\n", len(papers))

	if len(s.opts.Categories) > 0 {
		papers = s.deps.Filter.FilterByCategories(papers, s.opts.Categories)
		fmt.Printf("🔍 分类过滤 %v 后剩余 %d 篇\n", s.opts.Categories, len(papers))
	}

	// 3. 去重
	if s.opts.SkipSeen {
		papers, err = s.deps.Filter.FilterUnseen(ctx, papers)
		if err != nil {
			return nil, err
		}
		fmt.Printf("🔍 去掉已推送的论文后剩余 %d 篇\n", len(papers))
	}
	run.PaperCount = len(papers)

	digest := &domain.Digest{
		RunID:      run.ID,
		Date:       run.StartedAt,
		Topic:      s.opts.Topic,
		Categories: s.opts.Categories,
		Threshold:  s.opts.Threshold,
		Interest:   s.opts.Interest,
	}

	// 4. 打分
	var records []domain.RelevanceRecord
	if s.opts.Interest != "" {
		fmt.Println("🧠 开始相关性打分...")
		result, err := s.deps.Scorer.Score(ctx, papers, relevancy.Query{
			Interest:  s.opts.Interest,
			Threshold: s.opts.Threshold,
			BatchSize: s.opts.BatchSize,
			Model:     s.opts.Model,
			Sort:      true,
		})
		if err != nil {
			return nil, err
		}
		records = result.Records
		digest.Hallucinated = result.Hallucinated
		run.Hallucinated = result.Hallucinated
		fmt.Printf("✅ %d 篇论文达到阈值 %d\n", len(records), s.opts.Threshold)
	} else {
		records = unscored(papers)
	}

	// 5. 数量上限
	if s.opts.MaxPapers > 0 && len(records) > s.opts.MaxPapers {
		if len(s.opts.Categories) > 0 {
			records, err = relevancy.Balance(records, s.opts.Categories, s.opts.MaxPapers)
			if err != nil {
				return nil, err
			}
			fmt.Printf("⚖️ 按分类均衡后保留 %d 篇\n", len(records))
		} else {
			records = records[:s.opts.MaxPapers]
		}
	}

	// 6. 摘要
	if s.deps.Analyzer != nil && len(records) > 0 {
		records, err = s.deps.Analyzer.Summarize(ctx, records)
		if err != nil {
			return nil, err
		}
	}
	digest.Records = records
	run.RecordCount = len(records)

	// 7. 存储
	if s.deps.Repo != nil {
		entries := make([]*domain.PaperEntry, 0, len(records))
		for _, r := range records {
			entries = append(entries, domain.NewPaperEntry(run.ID, r))
		}
		if err := s.deps.Repo.SaveEntries(ctx, entries); err != nil {
			return nil, err
		}
		fmt.Printf("💾 已保存 %d 条论文记录\n", len(entries))
	}

	// 8. 推送
	if err := s.notify(ctx, digest); err != nil {
		return nil, err
	}
	return digest, nil
}

// unscored 没有 interest 时所有论文都原样推送
func unscored(papers []domain.Paper) []domain.RelevanceRecord {
	records := make([]domain.RelevanceRecord, 0, len(papers))
	for _, p := range papers {
		records = append(records, domain.RelevanceRecord{
			Paper:          p,
			SummarizedText: domain.BuildSummarizedText(p, nil),
		})
	}
	return records
}

// notify 并发推送到所有渠道，单个渠道失败不影响其他渠道；全部失败才算任务失败
func (s *DigestService) notify(ctx context.Context, digest *domain.Digest) error {
	if len(s.deps.Notifiers) == 0 {
		log.Println("⚠️ 未配置通知通道，跳过推送")
		return nil
	}
	fmt.Printf("📲 正在推送到 %d 个渠道...\n", len(s.deps.Notifiers))

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
	)
	for _, n := range s.deps.Notifiers {
		g.Go(func() error {
			if err := n.Notify(ctx, digest); err != nil {
				log.Printf("❌ 推送到 %s 失败: %v", n.Name(), err)
				s.deps.Metrics.RecordNotification(n.Name(), metrics.StatusFailed)
				mu.Lock()
				failed = append(failed, n.Name())
				mu.Unlock()
				return nil
			}
			fmt.Printf("✅ 已推送到 %s\n", n.Name())
			s.deps.Metrics.RecordNotification(n.Name(), metrics.StatusOK)
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == len(s.deps.Notifiers) {
		return common.NewError(common.ErrCodeNotification, fmt.Sprintf("所有渠道推送失败: %s", strings.Join(failed, ", ")))
	}

	if s.deps.Repo != nil && len(digest.Records) > 0 {
		ids := make([]string, 0, len(digest.Records))
		for _, r := range digest.Records {
			ids = append(ids, r.ID)
		}
		if err := s.deps.Repo.MarkAsNotified(ctx, ids); err != nil {
			log.Printf("⚠️ 标记论文为已推送失败: %v", err)
		}
	}
	return nil
}

func (s *DigestService) saveRun(ctx context.Context, run *domain.DigestRun) {
	if s.deps.Repo == nil {
		return
	}
	if err := s.deps.Repo.SaveRun(ctx, run); err != nil {
		log.Printf("⚠️ 保存运行记录失败: %v", err)
	}
}

func (s *DigestService) reportError(ctx context.Context, runErr error) {
	for _, r := range s.deps.Reporters {
		if err := r.NotifyError(ctx, runErr); err != nil {
			log.Printf("⚠️ 发送错误通知失败: %v", err)
		}
	}
}
