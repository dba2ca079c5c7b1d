package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/port"

	"golang.org/x/time/rate"
)

// RecordAnalyzer 并发为相关性记录补充双语摘要，输出顺序与输入一致
type RecordAnalyzer struct {
	summarizer    port.Summarizer
	maxGoroutines int // 最大并发数
	limiter       *rate.Limiter
	timeout       time.Duration
}

// NewRecordAnalyzer 创建新的分析器实例
func NewRecordAnalyzer(summarizer port.Summarizer) *RecordAnalyzer {
	return &RecordAnalyzer{
		summarizer:    summarizer,
		maxGoroutines: 3, // 默认并发数为3
		limiter:       rate.NewLimiter(rate.Every(time.Second), 1),
		timeout:       60 * time.Second,
	}
}

// SetMaxGoroutines 设置最大并发数
func (a *RecordAnalyzer) SetMaxGoroutines(max int) {
	if max > 0 {
		a.maxGoroutines = max
	}
}

// SetInterval 所有 worker 共享的请求间隔，<=0 表示不限速
func (a *RecordAnalyzer) SetInterval(d time.Duration) {
	if d <= 0 {
		a.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	a.limiter = rate.NewLimiter(rate.Every(d), 1)
}

type job struct {
	index  int
	record domain.RelevanceRecord
}

// summarizeWorker 工作协程，处理单篇论文的摘要
func (a *RecordAnalyzer) summarizeWorker(
	ctx context.Context,
	jobs <-chan job,
	out []domain.RelevanceRecord,
	errors chan<- error,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for j := range jobs {
		if err := a.limiter.Wait(ctx); err != nil {
			errors <- fmt.Errorf("等待限流 %s: %w", j.record.ID, err)
			continue
		}

		fmt.Printf("   [Worker-%d] %d/%d 正在摘要 %s...\n", workerID, j.index+1, len(out), j.record.ID)

		paperCtx, cancel := context.WithTimeout(ctx, a.timeout)
		summary, err := a.summarizer.Summarize(paperCtx, j.record.Paper)
		cancel()

		if err != nil {
			// 失败时保留原记录，不阻塞主流程
			fmt.Printf("   [Worker-%d] ❌ %s 摘要失败: %v\n", workerID, j.record.ID, err)
			errors <- fmt.Errorf("摘要 %s 失败: %w", j.record.ID, err)
			continue
		}

		// 每个 worker 只写自己拿到的下标
		out[j.index].Summary = summary
	}
}

// Summarize 为每条记录生成摘要；ctx 取消时返回已完成的部分和 ctx.Err()
func (a *RecordAnalyzer) Summarize(ctx context.Context, records []domain.RelevanceRecord) ([]domain.RelevanceRecord, error) {
	fmt.Printf("📝 开始生成摘要，共 %d 篇论文，最大并发数: %d\n", len(records), a.maxGoroutines)

	out := make([]domain.RelevanceRecord, len(records))
	copy(out, records)

	jobs := make(chan job, len(records))
	errors := make(chan error, len(records))

	var wg sync.WaitGroup
	for i := 0; i < a.maxGoroutines; i++ {
		wg.Add(1)
		go a.summarizeWorker(ctx, jobs, out, errors, &wg, i+1)
	}

	for i, r := range records {
		jobs <- job{index: i, record: r}
	}
	close(jobs)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// worker 会在限流等待处退出
		<-done
	}
	if err := ctx.Err(); err != nil {
		fmt.Println("⏰ 摘要生成因超时或取消而中断")
		return out, err
	}

	close(errors)
	if len(errors) > 0 {
		fmt.Printf("⚠️  共有 %d 个摘要错误:\n", len(errors))
		for err := range errors {
			fmt.Printf("   错误: %v\n", err)
		}
	}

	fmt.Println("✅ 摘要生成完成")
	return out, nil
}
