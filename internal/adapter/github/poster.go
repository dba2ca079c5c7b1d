package github

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/render"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

// Poster 把推送发布到 GitHub 仓库的 issue 中：每天一个 issue，每篇论文一条评论。
// 实现 port.Notifier
type Poster struct {
	client *github.Client
	owner  string
	repo   string
	labels []string

	retryDelay time.Duration
}

// NewPoster 初始化 GitHub 客户端
// repository 形如 "owner/name"；发 issue 需要 token
func NewPoster(token, repository string, labels []string) (*Poster, error) {
	owner, name, ok := splitRepository(repository)
	if !ok {
		return nil, common.NewError(common.ErrCodeConfiguration, "GitHub 仓库格式应为 owner/name: "+repository)
	}
	if token == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "缺少 GITHUB_TOKEN")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &Poster{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   name,
		labels: labels,

		retryDelay: time.Second,
	}, nil
}

func splitRepository(s string) (string, string, bool) {
	owner, name, ok := strings.Cut(s, "/")
	return owner, name, ok && owner != "" && name != "" && !strings.Contains(name, "/")
}

func (p *Poster) Name() string { return "github" }

// Notify 找到当天已有的 issue (重跑时) 或新建一个，然后逐篇评论
func (p *Poster) Notify(ctx context.Context, digest *domain.Digest) error {
	title := render.Title(digest)

	number, err := p.findIssue(ctx, title, digest.Date)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "查询 GitHub issue 失败", err)
	}
	if number == 0 {
		number, err = p.createIssue(ctx, title, render.Header(digest))
		if err != nil {
			return common.WrapError(common.ErrCodeNotification, "创建 GitHub issue 失败", err)
		}
		log.Printf("📌 已创建 issue #%d: %s", number, title)
	}

	for i, r := range digest.Records {
		body := render.PaperMarkdown(i+1, r)
		err := p.call(ctx, func() error {
			_, _, apiErr := p.client.Issues.CreateComment(ctx, p.owner, p.repo, number, &github.IssueComment{
				Body: github.String(body),
			})
			return apiErr
		})
		if err != nil {
			return common.WrapError(common.ErrCodeNotification, fmt.Sprintf("第 %d 篇论文评论失败", i+1), err)
		}
	}
	return nil
}

func (p *Poster) findIssue(ctx context.Context, title string, day time.Time) (int, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Labels:      p.labels,
		Since:       day.Truncate(24 * time.Hour),
		ListOptions: github.ListOptions{PerPage: 50},
	}

	var issues []*github.Issue
	err := p.call(ctx, func() error {
		var apiErr error
		issues, _, apiErr = p.client.Issues.ListByRepo(ctx, p.owner, p.repo, opts)
		return apiErr
	})
	if err != nil {
		return 0, err
	}
	for _, is := range issues {
		if is.GetTitle() == title && !is.IsPullRequest() {
			return is.GetNumber(), nil
		}
	}
	return 0, nil
}

func (p *Poster) createIssue(ctx context.Context, title, body string) (int, error) {
	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	if len(p.labels) > 0 {
		labels := p.labels
		req.Labels = &labels
	}

	var issue *github.Issue
	err := p.call(ctx, func() error {
		var apiErr error
		issue, _, apiErr = p.client.Issues.Create(ctx, p.owner, p.repo, req)
		return apiErr
	})
	if err != nil {
		return 0, err
	}
	return issue.GetNumber(), nil
}

// call 只对限流和 5xx 重试
func (p *Poster) call(ctx context.Context, fn func() error) error {
	return common.Do(ctx, fn,
		common.WithMaxRetries(3),
		common.WithInitialDelay(p.retryDelay),
		common.WithRetryIf(isRetryable),
	)
}

func isRetryable(err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode >= http.StatusInternalServerError
	}
	return false
}
