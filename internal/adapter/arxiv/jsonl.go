package arxiv

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
)

// JSONLSource 从本地 JSONL 文件读取论文，每行一篇。
// path 中的 "{topic}" 会被替换为 topic 代码。
type JSONLSource struct {
	path string
}

func NewJSONLSource(path string) *JSONLSource {
	return &JSONLSource{path: path}
}

func (s *JSONLSource) FetchPapers(ctx context.Context, topic string) ([]domain.Paper, error) {
	path := strings.ReplaceAll(s.path, "{topic}", topic)
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, common.WrapError(common.ErrCodePaperSource, "无法打开论文文件 "+path, err)
	}
	defer f.Close()

	return ReadJSONL(ctx, f)
}

// ReadJSONL 逐行解析论文；空行跳过，坏行报错并带上行号
func ReadJSONL(ctx context.Context, r io.Reader) ([]domain.Paper, error) {
	var papers []domain.Paper
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var p domain.Paper
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, common.WrapError(common.ErrCodePaperSource, fmt.Sprintf("第 %d 行不是合法的论文 JSON", line), err)
		}
		if p.ID == "" {
			p.ID = idFromLink(p.MainPage)
		}
		papers = append(papers, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, common.WrapError(common.ErrCodePaperSource, "读取论文文件失败", err)
	}
	return papers, nil
}
