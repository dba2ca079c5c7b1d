package domain

import (
	"fmt"
	"strings"
	"time"
)

// Paper 代表一篇 arXiv 论文的元数据
type Paper struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Abstract string `json:"abstract"`
	// Subjects 原始分类字符串，例如 "Artificial Intelligence (cs.AI); Machine Learning (cs.LG)"
	Subjects string `json:"subjects"`
	MainPage string `json:"main_page"`
}

// Field 是模型返回的一个键值对，保持模型输出中的顺序
type Field struct {
	Key   string
	Value any
}

// Summary 双语摘要 (英文 + 日文)
type Summary struct {
	English  string `json:"summary_en"`
	Japanese string `json:"summary_ja"`
}

// RelevanceRecord 是一篇论文加上模型给出的相关性评分
type RelevanceRecord struct {
	Paper

	// Score 相关性评分，名义上 1-10
	Score int
	// Scored 为 false 表示未经过模型打分 (没有配置 interest 时)
	Scored bool
	Reason string

	// Fields 模型返回的全部字段，原样保留
	Fields []Field

	// SummarizedText 供通知渠道直接展示的扁平文本
	SummarizedText string

	Summary *Summary
}

// Extra 返回评分与理由之外的模型字段
func (r RelevanceRecord) Extra() []Field {
	var extra []Field
	for _, f := range r.Fields {
		if IsScoreKey(f.Key) || IsReasonKey(f.Key) {
			continue
		}
		extra = append(extra, f)
	}
	return extra
}

// Lookup 按键名 (忽略大小写) 查找模型字段
func (r RelevanceRecord) Lookup(key string) (any, bool) {
	for _, f := range r.Fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value, true
		}
	}
	return nil, false
}

// BuildSummarizedText 生成 "Title/Authors/Link + 各字段" 的展示文本
func BuildSummarizedText(p Paper, fields []Field) string {
	var sb strings.Builder
	sb.WriteString("Title: " + p.Title + "\n")
	sb.WriteString("Authors: " + p.Authors + "\n")
	sb.WriteString("Link: " + p.MainPage + "\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "%s: %v\n", f.Key, f.Value)
	}
	return sb.String()
}

const (
	// ScoreKey 模型输出中评分字段的名称
	ScoreKey = "Relevancy score"
	// ReasonKey 模型输出中匹配理由字段的名称
	ReasonKey = "Reasons for match"
)

// IsScoreKey 判断字段名是否是评分字段
func IsScoreKey(key string) bool {
	return strings.EqualFold(strings.TrimSpace(key), ScoreKey)
}

// IsReasonKey 判断字段名是否是理由字段
func IsReasonKey(key string) bool {
	return strings.EqualFold(strings.TrimSpace(key), ReasonKey)
}

// ScoringResult 打分器的整体输出
type ScoringResult struct {
	Records []RelevanceRecord
	// Hallucinated 至少有一个批次解析出的记录少于输入论文数
	Hallucinated bool
}

// Digest 是交给通知渠道的一次推送内容
type Digest struct {
	RunID        string
	Date         time.Time
	Topic        string
	Categories   []string
	Threshold    int
	Interest     string
	Records      []RelevanceRecord
	Hallucinated bool
}

// HallucinationWarning 模型可能漏评论文时附在推送开头的提示
const HallucinationWarning = "Warning: the model may have hallucinated some papers. We have tried to remove them, but the scores may not be accurate."

// PaperEntry 是持久化到数据库的一条论文记录
type PaperEntry struct {
	ID              string `gorm:"primaryKey"`
	RunID           string `gorm:"index"`
	Title           string
	Authors         string
	Abstract        string `gorm:"type:text"`
	Subjects        string
	MainPage        string
	Score           int
	Scored          bool
	Reason          string `gorm:"type:text"`
	SummaryEN       string `gorm:"type:text"`
	SummaryJA       string `gorm:"type:text"`
	AlreadyNotified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPaperEntry 把一条相关性记录转换为数据库实体
func NewPaperEntry(runID string, r RelevanceRecord) *PaperEntry {
	e := &PaperEntry{
		ID:       r.ID,
		RunID:    runID,
		Title:    r.Title,
		Authors:  r.Authors,
		Abstract: r.Abstract,
		Subjects: r.Subjects,
		MainPage: r.MainPage,
		Score:    r.Score,
		Scored:   r.Scored,
		Reason:   r.Reason,
	}
	if r.Summary != nil {
		e.SummaryEN = r.Summary.English
		e.SummaryJA = r.Summary.Japanese
	}
	return e
}

// 运行状态
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// DigestRun 记录一次推送任务的执行情况
type DigestRun struct {
	ID           string `gorm:"primaryKey"`
	Topic        string
	Categories   string
	Status       string
	PaperCount   int
	RecordCount  int
	Hallucinated bool
	Error        string `gorm:"type:text"`
	StartedAt    time.Time
	FinishedAt   *time.Time
}
