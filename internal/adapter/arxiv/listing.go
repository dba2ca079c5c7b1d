package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

const DefaultBaseURL = "https://arxiv.org"

// ListingSource 抓取 arxiv.org/list/<code>/new 页面，实现 port.PaperSource
type ListingSource struct {
	baseURL    string
	httpClient *http.Client
	limit      int
}

type ListingOption func(*ListingSource)

// WithBaseURL 替换 arXiv 地址 (测试或镜像站)
func WithBaseURL(u string) ListingOption {
	return func(s *ListingSource) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(c *http.Client) ListingOption {
	return func(s *ListingSource) {
		s.httpClient = c
	}
}

// WithLimit 最多返回 n 篇论文，0 表示不限
func WithLimit(n int) ListingOption {
	return func(s *ListingSource) {
		s.limit = n
	}
}

func NewListingSource(opts ...ListingOption) *ListingSource {
	s := &ListingSource{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ListingSource) FetchPapers(ctx context.Context, topic string) ([]domain.Paper, error) {
	url := fmt.Sprintf("%s/list/%s/new", s.baseURL, topic)

	var doc *goquery.Document
	err := common.Do(ctx, func() error {
		var fetchErr error
		doc, fetchErr = s.fetch(ctx, url)
		return fetchErr
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(2*time.Second),
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodePaperSource, "无法获取 arXiv 列表 "+url, err)
	}

	papers := s.parse(doc)
	if s.limit > 0 && len(papers) > s.limit {
		papers = papers[:s.limit]
	}
	return papers, nil
}

func (s *ListingSource) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "arxiv-digest/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// parse 每个 dt/dd 对是一篇论文，同一 ID 只保留第一次出现
func (s *ListingSource) parse(doc *goquery.Document) []domain.Paper {
	var papers []domain.Paper
	seen := make(map[string]bool)

	doc.Find("dl dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}

		id := paperID(dt)
		if id == "" || seen[id] {
			return
		}

		p := domain.Paper{
			ID:       id,
			Title:    descriptorText(dd.Find("div.list-title")),
			Authors:  joinAuthors(dd.Find("div.list-authors a")),
			Subjects: descriptorText(dd.Find("div.list-subjects")),
			Abstract: collapse(dd.Find("p.mathjax").Text()),
			MainPage: s.baseURL + "/abs/" + id,
		}
		if p.Title == "" {
			return
		}
		seen[id] = true
		papers = append(papers, p)
	})
	return papers
}

// paperID 从 "/abs/2401.00001" 链接中取出论文 ID
func paperID(dt *goquery.Selection) string {
	href, ok := dt.Find(`a[title="Abstract"]`).Attr("href")
	if !ok {
		return ""
	}
	if i := strings.LastIndex(href, "/abs/"); i >= 0 {
		return strings.TrimSpace(href[i+len("/abs/"):])
	}
	return ""
}

// descriptorText 去掉 "Title:" / "Subjects:" 这类前缀
func descriptorText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("span.descriptor").Remove()
	return collapse(clone.Text())
}

func joinAuthors(sel *goquery.Selection) string {
	names := sel.Map(func(_ int, a *goquery.Selection) string {
		return collapse(a.Text())
	})
	return strings.Join(names, ", ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
