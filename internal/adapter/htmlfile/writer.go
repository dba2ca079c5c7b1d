// Package htmlfile 把推送的 HTML 写到本地文件 (默认 digest.html)，方便 CI 作为产物上传
package htmlfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/render"
)

const page = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>%s</title></head>
<body>
%s
</body>
</html>
`

type Writer struct {
	path     string
	renderer *render.HTMLRenderer
}

func NewWriter(path string, renderer *render.HTMLRenderer) *Writer {
	if path == "" {
		path = "digest.html"
	}
	if renderer == nil {
		renderer = render.NewHTMLRenderer()
	}
	return &Writer{path: path, renderer: renderer}
}

func (w *Writer) Name() string { return "file" }

// Notify 先写临时文件再改名，避免留下写了一半的页面
func (w *Writer) Notify(ctx context.Context, d *domain.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := w.renderer.Body(d)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "渲染 HTML 失败", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return common.WrapError(common.ErrCodeNotification, "创建目录失败", err)
	}
	tmp, err := os.CreateTemp(dir, ".digest-*.html")
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "创建临时文件失败", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, page, render.Title(d), body); err != nil {
		tmp.Close()
		return common.WrapError(common.ErrCodeNotification, "写入 HTML 失败", err)
	}
	if err := tmp.Close(); err != nil {
		return common.WrapError(common.ErrCodeNotification, "写入 HTML 失败", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return common.WrapError(common.ErrCodeNotification, "保存 "+w.path+" 失败", err)
	}
	return nil
}
