package filter

import (
	"context"
	"log"

	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/port"
	"arxiv-digest/internal/relevancy"
)

// PaperFilter 在打分之前筛掉不需要的论文
type PaperFilter struct {
	repo port.Repository
}

// NewPaperFilter repo 为 nil 时不做去重
func NewPaperFilter(repo port.Repository) *PaperFilter {
	return &PaperFilter{repo: repo}
}

// FilterByCategories 只保留与任一目标分类有交集的论文，categories 为空时原样返回
func (f *PaperFilter) FilterByCategories(papers []domain.Paper, categories []string) []domain.Paper {
	if len(categories) == 0 {
		return papers
	}

	filtered := make([]domain.Paper, 0, len(papers))
	for _, p := range papers {
		if relevancy.ParseSubjects(p.Subjects).Intersects(categories) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// FilterUnseen 过滤掉之前已经推送过的论文
func (f *PaperFilter) FilterUnseen(ctx context.Context, papers []domain.Paper) ([]domain.Paper, error) {
	if f == nil || f.repo == nil {
		return papers, nil
	}

	filtered := make([]domain.Paper, 0, len(papers))
	for _, p := range papers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		exists, err := f.repo.Exists(ctx, p.ID)
		if err != nil {
			// 查询失败，保守地保留该论文
			log.Printf("[Filter] 检查论文 %s 是否已推送时出错: %v，保留该论文", p.ID, err)
			filtered = append(filtered, p)
			continue
		}
		if exists {
			log.Printf("[Filter] 跳过已推送的论文: %s", p.ID)
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}
