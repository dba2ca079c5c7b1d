package relevancy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
)

//go:embed prompts/relevancy_prompt.txt
var defaultPromptTemplate string

// promptSeparator 分隔每篇论文的固定行
const promptSeparator = "###\n"

// PromptEncoder 把用户兴趣和一批论文编码为发给模型的提示
type PromptEncoder struct {
	template string
}

// NewPromptEncoder 加载指令模板；path 为空时使用内置模板。
// 模板缺失或为空属于部署问题，返回 ConfigurationError。
func NewPromptEncoder(path string) (*PromptEncoder, error) {
	tmpl := defaultPromptTemplate
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, common.WrapError(common.ErrCodeConfiguration, "无法加载提示模板 "+path, err)
		}
		tmpl = string(data)
	}
	if strings.TrimSpace(tmpl) == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "提示模板为空")
	}
	return &PromptEncoder{template: tmpl}, nil
}

// Encode 构造一个批次的完整提示。论文从 1 开始编号，
// 响应解析依赖这个编号与输入顺序对齐。
func (e *PromptEncoder) Encode(interest string, batch []domain.Paper) (string, error) {
	var sb strings.Builder
	sb.WriteString(e.template)
	sb.WriteString("\n")
	sb.WriteString(interest)

	for i, p := range batch {
		if p.Title == "" {
			return "", common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("第 %d 篇论文缺少标题 (id=%s)", i+1, p.ID))
		}
		n := i + 1
		sb.WriteString(promptSeparator)
		fmt.Fprintf(&sb, "%d. Title: %s\n", n, p.Title)
		fmt.Fprintf(&sb, "%d. Authors: %s\n", n, p.Authors)
		fmt.Fprintf(&sb, "%d. Abstract: %s\n", n, p.Abstract)
	}
	sb.WriteString("\n Generate response:\n1.")
	return sb.String(), nil
}
