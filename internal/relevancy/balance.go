package relevancy

import (
	"sort"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
)

// Balance 把超过上限的记录按分类均分。每条记录只归入 categories 中第一个
// 匹配的分类，不属于任何分类的记录被丢弃。每个分类最多 maxTotal/len(categories)
// 条，剩余名额不会借给其他分类。
func Balance(records []domain.RelevanceRecord, categories []string, maxTotal int) ([]domain.RelevanceRecord, error) {
	if len(categories) == 0 {
		return nil, common.NewError(common.ErrCodeConfiguration, "分类均衡需要至少一个分类")
	}
	if maxTotal <= 0 {
		return nil, common.NewError(common.ErrCodeConfiguration, "max papers 必须大于 0")
	}
	if len(records) <= maxTotal {
		return records, nil
	}

	buckets := make(map[string][]domain.RelevanceRecord, len(categories))
	for _, r := range records {
		set := ParseSubjects(r.Subjects)
		for _, c := range categories {
			if set.Has(c) {
				buckets[c] = append(buckets[c], r)
				break
			}
		}
	}

	perCategory := maxTotal / len(categories)
	out := make([]domain.RelevanceRecord, 0, maxTotal)
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		// 重复的分类名只取一次
		if seen[c] {
			continue
		}
		seen[c] = true

		bucket := buckets[c]
		if allScored(bucket) {
			sort.SliceStable(bucket, func(i, j int) bool {
				return bucket[i].Score > bucket[j].Score
			})
		}
		if len(bucket) > perCategory {
			bucket = bucket[:perCategory]
		}
		out = append(out, bucket...)
	}
	return out, nil
}

func allScored(records []domain.RelevanceRecord) bool {
	for _, r := range records {
		if !r.Scored {
			return false
		}
	}
	return true
}
