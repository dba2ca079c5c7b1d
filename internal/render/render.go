// Package render 把一次推送内容格式化为 Markdown (聊天/论坛) 和 HTML (邮件/文件)
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"arxiv-digest/internal/domain"

	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var digestTemplate = template.Must(
	template.New("digest.html.tmpl").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/digest.html.tmpl"),
)

const dateLayout = "2006-01-02"

// Title 推送标题，邮件主题和论坛帖子共用
func Title(d *domain.Digest) string {
	return "Personalized arXiv Digest - " + d.Date.Format(dateLayout)
}

// Header 推送开头的概要信息
func Header(d *domain.Digest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📚 **arXiv Digest - %s**\n", d.Date.Format(dateLayout))
	fmt.Fprintf(&sb, "Topic: %s\n", d.Topic)
	if len(d.Categories) > 0 {
		fmt.Fprintf(&sb, "Categories: %s\n", strings.Join(d.Categories, ", "))
	}
	if d.Interest != "" {
		fmt.Fprintf(&sb, "Relevancy threshold: %d+\n", d.Threshold)
	}
	fmt.Fprintf(&sb, "Papers: %d\n", len(d.Records))
	if d.Hallucinated {
		sb.WriteString("⚠️ " + domain.HallucinationWarning + "\n")
	}
	sb.WriteString(strings.Repeat("─", 40))
	return sb.String()
}

// PaperMarkdown 单篇论文的 Markdown，idx 从 1 开始
func PaperMarkdown(idx int, r domain.RelevanceRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**[%d]** [%s](%s)\n", idx, r.Title, r.MainPage)
	fmt.Fprintf(&sb, "Authors: %s\n", r.Authors)
	if r.Scored {
		fmt.Fprintf(&sb, "Score: %d\n", r.Score)
		if r.Reason != "" {
			fmt.Fprintf(&sb, "Reason: %s\n", r.Reason)
		}
	}
	for _, f := range r.Extra() {
		fmt.Fprintf(&sb, "%s: %v\n", f.Key, f.Value)
	}
	if r.Summary != nil {
		if r.Summary.English != "" {
			fmt.Fprintf(&sb, "📝 %s\n", r.Summary.English)
		}
		if r.Summary.Japanese != "" {
			fmt.Fprintf(&sb, "🇯🇵 %s\n", r.Summary.Japanese)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Markdown 整个推送的 Markdown
func Markdown(d *domain.Digest) string {
	parts := []string{Header(d)}
	for i, r := range d.Records {
		parts = append(parts, PaperMarkdown(i+1, r))
	}
	return strings.Join(parts, "\n\n")
}

// HTMLRenderer 渲染并清洗邮件/文件用的 HTML
type HTMLRenderer struct {
	policy *bluemonday.Policy
}

func NewHTMLRenderer() *HTMLRenderer {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return &HTMLRenderer{policy: p}
}

// Body 只返回清洗后的正文部分，html/head 等外层标签会被策略去掉
func (h *HTMLRenderer) Body(d *domain.Digest) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Title   string
		Warning string
		Digest  *domain.Digest
	}{
		Title:   Title(d),
		Warning: domain.HallucinationWarning,
		Digest:  d,
	}
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("渲染 HTML 失败: %w", err)
	}
	return strings.TrimSpace(h.policy.Sanitize(buf.String())), nil
}
