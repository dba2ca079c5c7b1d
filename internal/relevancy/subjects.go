package relevancy

import (
	"sort"
	"strings"
)

// CategorySet 是从 subjects 字符串解析出的分类名集合
type CategorySet map[string]struct{}

// ParseSubjects 把 "Artificial Intelligence (cs.AI); Machine Learning (cs.LG)"
// 解析为 {"Artificial Intelligence", "Machine Learning"}
func ParseSubjects(raw string) CategorySet {
	set := make(CategorySet)
	for _, token := range strings.Split(raw, ";") {
		if i := strings.Index(token, " ("); i >= 0 {
			token = token[:i]
		}
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		set[token] = struct{}{}
	}
	return set
}

// Has 判断集合中是否包含某个分类
func (s CategorySet) Has(category string) bool {
	_, ok := s[category]
	return ok
}

// Intersects 判断集合与给定分类是否有交集
func (s CategorySet) Intersects(categories []string) bool {
	for _, c := range categories {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Sorted 返回排序后的分类名，便于日志输出
func (s CategorySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
