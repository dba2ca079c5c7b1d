package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/render"

	"golang.org/x/time/rate"
)

const (
	// MaxMessageLength Discord 单条消息的字符上限
	MaxMessageLength = 2000
	DefaultUsername  = "ArxivDigest Bot"
)

// errRejected 表示服务端明确拒绝了消息，重试没有意义
var errRejected = errors.New("webhook rejected message")

type Notifier struct {
	webhookURL string
	username   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

type Option func(*Notifier)

func WithUsername(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.username = name
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		n.httpClient = c
	}
}

// WithInterval 两条消息之间的最小间隔
func WithInterval(d time.Duration) Option {
	return func(n *Notifier) {
		if d <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(n *Notifier) {
		n.maxRetries = maxRetries
		n.retryDelay = delay
	}
}

func NewNotifier(webhook string, opts ...Option) *Notifier {
	if webhook == "" {
		log.Println("⚠️ 警告: Webhook URL 为空，推送功能将无法工作！")
	}
	n := &Notifier{
		webhookURL: webhook,
		username:   DefaultUsername,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Name() string { return "webhook" }

// Notify 先发送概要，再逐篇发送论文。单篇失败不影响后续论文，
// 但最终会返回错误。
func (n *Notifier) Notify(ctx context.Context, digest *domain.Digest) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeConfiguration, "Webhook URL 为空")
	}

	if err := n.post(ctx, render.Header(digest)); err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送概要失败", err)
	}

	failed := 0
	for i, r := range digest.Records {
		for _, chunk := range SplitMessage(render.PaperMarkdown(i+1, r), MaxMessageLength) {
			if err := n.post(ctx, chunk); err != nil {
				if ctx.Err() != nil {
					return common.WrapError(common.ErrCodeNotification, "推送被取消", ctx.Err())
				}
				log.Printf("❌ 论文 %d 推送失败: %v", i+1, err)
				failed++
				break
			}
		}
	}
	if failed > 0 {
		return common.NewError(common.ErrCodeNotification, fmt.Sprintf("%d/%d 篇论文推送失败", failed, len(digest.Records)))
	}
	log.Printf("🎉 Webhook 推送完成，共 %d 篇论文", len(digest.Records))
	return nil
}

// NotifyError 把任务失败信息推送到同一个频道
func (n *Notifier) NotifyError(ctx context.Context, runErr error) error {
	if n.webhookURL == "" || runErr == nil {
		return nil
	}
	content := fmt.Sprintf("⚠️ **ArxivDigest error - %s**\n```\n%s\n```", time.Now().Format("2006-01-02"), runErr.Error())
	chunks := SplitMessage(content, MaxMessageLength)
	return n.post(ctx, chunks[0])
}

type payload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

func (n *Notifier) post(ctx context.Context, content string) error {
	body, err := json.Marshal(payload{Content: content, Username: n.username})
	if err != nil {
		return err
	}

	return common.Do(ctx, func() error {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("webhook 报错: 状态码 %d", resp.StatusCode)
		default:
			return fmt.Errorf("%w: 状态码 %d", errRejected, resp.StatusCode)
		}
	},
		common.WithMaxRetries(n.maxRetries),
		common.WithInitialDelay(n.retryDelay),
		common.WithRetryIf(func(err error) bool {
			return !errors.Is(err, errRejected) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
}
