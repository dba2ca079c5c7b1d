package relevancy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
)

var (
	enumPrefix = regexp.MustCompile(`^\d+\.\s*`)
	fenceLine  = strings.NewReplacer("```json", "", "```", "")
)

// ParseResponse 把模型的原始回复解析成与 batch 按位置对齐的相关性记录。
// truncated 表示回复中的对象少于 batch 中的论文，缺失的尾部被丢弃。
func ParseResponse(raw string, batch []domain.Paper, threshold int) ([]domain.RelevanceRecord, bool, error) {
	text := fenceLine.Replace(raw)

	objects, err := extractObjects(text)
	if err != nil {
		return nil, false, err
	}

	// 先校验所有对象的评分，包括之后被丢弃的多余对象
	scores := make([]int, len(objects))
	for i, obj := range objects {
		score, err := scoreOf(obj)
		if err != nil {
			return nil, false, common.WrapError(common.ErrCodeResponseFormat, fmt.Sprintf("第 %d 个对象评分无效", i+1), err)
		}
		scores[i] = score
	}

	truncated := len(objects) < len(batch)
	if len(objects) > len(batch) {
		objects = objects[:len(batch)]
	}

	var selected []domain.RelevanceRecord
	for i, obj := range objects {
		if scores[i] < threshold {
			continue
		}
		paper := batch[i]
		rec := domain.RelevanceRecord{
			Paper:          paper,
			Score:          scores[i],
			Scored:         true,
			Fields:         obj,
			SummarizedText: domain.BuildSummarizedText(paper, obj),
		}
		for _, f := range obj {
			if domain.IsReasonKey(f.Key) {
				rec.Reason = fmt.Sprint(f.Value)
				break
			}
		}
		selected = append(selected, rec)
	}
	return selected, truncated, nil
}

// extractObjects 先按花括号深度切分多行对象，遇到第一个坏对象就停下；
// 一个对象都拿不到时才退回逐行解析
func extractObjects(text string) ([][]domain.Field, error) {
	var objects [][]domain.Field
	for _, b := range splitBlocks(text) {
		obj, err := decodeObject(b)
		if err != nil {
			break
		}
		objects = append(objects, obj)
	}
	if len(objects) > 0 {
		return objects, nil
	}

	for _, line := range strings.Split(text, "\n") {
		if !containsScoreKey(line) {
			continue
		}
		line = enumPrefix.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.ReplaceAll(line, `\`, "")
		obj, err := decodeObject(line)
		if err != nil {
			return nil, common.WrapError(common.ErrCodeResponseFormat, "无法解析模型输出行", err)
		}
		objects = append(objects, obj)
	}
	if len(objects) == 0 {
		return nil, common.NewError(common.ErrCodeResponseFormat, "模型输出中没有找到相关性对象")
	}
	return objects, nil
}

// splitBlocks 逐行累计花括号深度，深度归零时得到一个候选对象
func splitBlocks(text string) []string {
	var (
		blocks []string
		buf    []string
		depth  int
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		buf = append(buf, line)

		switch {
		case depth < 0:
			depth = 0
			buf = buf[:0]
		case depth == 0:
			block := strings.Join(buf, "\n")
			if containsScoreKey(block) {
				blocks = append(blocks, trimToObject(block))
			}
			buf = buf[:0]
		}
	}
	return blocks
}

// trimToObject 去掉对象前后的编号等杂项 ("1. {...}," -> "{...}")
func trimToObject(block string) string {
	start := strings.Index(block, "{")
	end := strings.LastIndex(block, "}")
	if start < 0 || end < start {
		return block
	}
	return block[start : end+1]
}

func containsScoreKey(s string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(domain.ScoreKey))
}

// decodeObject 解析一个 JSON 对象并保留键的顺序
func decodeObject(s string) ([]domain.Field, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var fields []domain.Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, domain.Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// scoreOf 读取评分字段："8/10" 取分子，其余值转成整数
func scoreOf(obj []domain.Field) (int, error) {
	for _, f := range obj {
		if domain.IsScoreKey(f.Key) {
			return coerceScore(f.Value)
		}
	}
	return 0, fmt.Errorf("missing %q", domain.ScoreKey)
}

func coerceScore(v any) (int, error) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n), nil
		}
		f, err := val.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("score %q is not a number", val.String())
		}
		return int(f), nil
	case float64:
		return int(val), nil
	case string:
		if i := strings.Index(val, "/"); i >= 0 {
			val = val[:i]
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("score %q is not an integer", val)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported score value %v", v)
	}
}
