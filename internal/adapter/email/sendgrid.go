package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/render"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	DefaultHost = "https://api.sendgrid.com"
	sendPath    = "/v3/mail/send"
)

// Sender 通过 SendGrid 发送 HTML 邮件，实现 port.Notifier
type Sender struct {
	apiKey   string
	host     string
	from     *mail.Email
	to       []*mail.Email
	renderer *render.HTMLRenderer

	maxRetries int
	retryDelay time.Duration
}

type Option func(*Sender)

// WithHost 替换 SendGrid API 地址 (测试用)
func WithHost(host string) Option {
	return func(s *Sender) {
		s.host = strings.TrimRight(host, "/")
	}
}

func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Sender) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// NewSender to 可以是逗号分隔的多个地址
func NewSender(apiKey, from, to string, renderer *render.HTMLRenderer, opts ...Option) (*Sender, error) {
	if apiKey == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "SENDGRID_API_KEY 未设置")
	}
	if from == "" || to == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "发件人或收件人邮箱为空")
	}

	s := &Sender{
		apiKey:     apiKey,
		host:       DefaultHost,
		from:       mail.NewEmail("arXiv Digest", from),
		renderer:   renderer,
		maxRetries: 2,
		retryDelay: time.Second,
	}
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			s.to = append(s.to, mail.NewEmail("", addr))
		}
	}
	if len(s.to) == 0 {
		return nil, common.NewError(common.ErrCodeConfiguration, "收件人邮箱为空")
	}
	if s.renderer == nil {
		s.renderer = render.NewHTMLRenderer()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Sender) Name() string { return "email" }

func (s *Sender) Notify(ctx context.Context, d *domain.Digest) error {
	body, err := s.renderer.Body(d)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "渲染邮件失败", err)
	}

	message := mail.NewSingleEmail(s.from, render.Title(d), s.to[0], render.Markdown(d), body)
	if len(s.to) > 1 {
		message.Personalizations[0].AddTos(s.to[1:]...)
	}

	request := sendgrid.GetRequest(s.apiKey, sendPath, s.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(message)

	err = common.Do(ctx, func() error {
		resp, err := sendgrid.MakeRequestWithContext(ctx, request)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &statusError{code: resp.StatusCode, body: resp.Body}
		}
		return nil
	},
		common.WithMaxRetries(s.maxRetries),
		common.WithInitialDelay(s.retryDelay),
		common.WithRetryIf(isRetryable),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送邮件失败", err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("sendgrid returned status %d: %s", e.code, e.body)
}

// isRetryable 只有限流和服务端错误值得重试，网络错误也重试
func isRetryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	return se.code == http.StatusTooManyRequests || se.code >= 500
}
