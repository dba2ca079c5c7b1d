package arxiv

import (
	"context"
	"net/http"
	"strings"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"

	"github.com/mmcdole/gofeed"
)

const DefaultRSSURL = "https://rss.arxiv.org/rss"

// RSSSource 读取 rss.arxiv.org 的每日订阅。
// RSS 里的分类只有代码 (cs.LG)，没有分类名。
type RSSSource struct {
	baseURL string
	parser  *gofeed.Parser
}

func NewRSSSource(baseURL string, client *http.Client) *RSSSource {
	if baseURL == "" {
		baseURL = DefaultRSSURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	fp := gofeed.NewParser()
	fp.Client = client
	return &RSSSource{baseURL: strings.TrimRight(baseURL, "/"), parser: fp}
}

func (s *RSSSource) FetchPapers(ctx context.Context, topic string) ([]domain.Paper, error) {
	url := s.baseURL + "/" + topic

	var feed *gofeed.Feed
	err := common.Do(ctx, func() error {
		var parseErr error
		feed, parseErr = s.parser.ParseURLWithContext(url, ctx)
		return parseErr
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(2*time.Second),
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodePaperSource, "无法获取 arXiv RSS "+url, err)
	}

	papers := make([]domain.Paper, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}
		papers = append(papers, domain.Paper{
			ID:       idFromLink(item.Link),
			Title:    collapse(item.Title),
			Authors:  itemAuthors(item),
			Abstract: itemAbstract(item.Description),
			Subjects: strings.Join(item.Categories, "; "),
			MainPage: item.Link,
		})
	}
	return papers, nil
}

func idFromLink(link string) string {
	if i := strings.LastIndex(link, "/abs/"); i >= 0 {
		return link[i+len("/abs/"):]
	}
	return link
}

func itemAuthors(item *gofeed.Item) string {
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return collapse(strings.Join(item.DublinCoreExt.Creator, ", "))
	}
	names := make([]string, 0, len(item.Authors))
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// itemAbstract 描述形如 "arXiv:2401.00001v1 Announce Type: new \nAbstract: ..."
func itemAbstract(desc string) string {
	if i := strings.Index(desc, "Abstract:"); i >= 0 {
		desc = desc[i+len("Abstract:"):]
	}
	return collapse(desc)
}
