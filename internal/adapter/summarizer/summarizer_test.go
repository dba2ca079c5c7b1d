package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"
	"arxiv-digest/internal/metrics"
	"arxiv-digest/internal/port"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req port.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, paperID string) (*domain.Summary, bool, error) {
	args := m.Called(ctx, paperID)
	s, _ := args.Get(0).(*domain.Summary)
	return s, args.Bool(1), args.Error(2)
}

func (m *MockCache) Set(ctx context.Context, paperID string, summary *domain.Summary) error {
	args := m.Called(ctx, paperID, summary)
	return args.Error(0)
}

func assertSummaryCount(t *testing.T, rec *metrics.Recorder, source string) {
	t.Helper()
	expected := `
# HELP arxiv_digest_summaries_total Summaries by source (cache, model, fallback)
# TYPE arxiv_digest_summaries_total counter
arxiv_digest_summaries_total{source="` + source + `"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "arxiv_digest_summaries_total"))
}

var paper = domain.Paper{
	ID:       "2401.00001",
	Title:    "Scaling GNNs",
	Authors:  "Ada Lovelace",
	Abstract: "We scale graph neural networks.",
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *domain.Summary
		wantErr bool
	}{
		{
			name: "纯 JSON",
			raw:  `{"summary_en": "EN", "summary_ja": "JA"}`,
			want: &domain.Summary{English: "EN", Japanese: "JA"},
		},
		{
			name: "带代码块和前后缀",
			raw:  "Here you go:\n```json\n{\n  \"summary_en\": \"EN\",\n  \"summary_ja\": \"JA\"\n}\n```\nThanks",
			want: &domain.Summary{English: "EN", Japanese: "JA"},
		},
		{
			name: "没有 JSON 时整段作为英文",
			raw:  "  This paper studies GNNs.  ",
			want: &domain.Summary{English: "This paper studies GNNs."},
		},
		{
			name: "缺少日文字段",
			raw:  `{"summary_en": "EN"}`,
			want: &domain.Summary{English: "EN"},
		},
		{
			name:    "花括号内不是 JSON",
			raw:     `{summary_en: EN}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSummary(tt.raw)
			if tt.wantErr {
				assert.True(t, common.HasCode(err, common.ErrCodeResponseFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := buildPrompt(paper)
	require.NoError(t, err)

	assert.Contains(t, prompt, "Title: Scaling GNNs\n")
	assert.Contains(t, prompt, "Authors: Ada Lovelace\n")
	assert.Contains(t, prompt, "Abstract: We scale graph neural networks.\n")
	assert.Contains(t, prompt, `"summary_ja": "日本語の要約をここに記載"`)
}

func TestLLMSummarizer_Summarize(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req port.GenerationRequest) bool {
		return req.Model == "m" && req.Temperature == 0.3 && req.MaxTokens == 1200
	})).Return(`{"summary_en": "EN", "summary_ja": "JA"}`, nil).Once()

	rec := metrics.NewRecorder()
	s := New(gen, "m", WithMetrics(rec))

	got, err := s.Summarize(context.Background(), paper)
	require.NoError(t, err)
	assert.Equal(t, &domain.Summary{English: "EN", Japanese: "JA"}, got)
	assertSummaryCount(t, rec, SourceModel)
	gen.AssertExpectations(t)
}

func TestLLMSummarizer_Fallback(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(gen *MockGenerator)
		wantCalls int
	}{
		{
			name: "致命错误不重试",
			setup: func(gen *MockGenerator) {
				gen.On("Generate", mock.Anything, mock.Anything).
					Return("", common.NewError(common.ErrCodeProvider, "bad key"))
			},
			wantCalls: 1,
		},
		{
			name: "临时错误重试后放弃",
			setup: func(gen *MockGenerator) {
				gen.On("Generate", mock.Anything, mock.Anything).
					Return("", common.NewError(common.ErrCodeTransientProvider, "429"))
			},
			wantCalls: 3,
		},
		{
			name: "回复无法解析",
			setup: func(gen *MockGenerator) {
				gen.On("Generate", mock.Anything, mock.Anything).Return("{oops}", nil)
			},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := new(MockGenerator)
			tt.setup(gen)
			rec := metrics.NewRecorder()
			s := New(gen, "m", WithMetrics(rec), WithRetry(2, time.Millisecond))

			got, err := s.Summarize(context.Background(), paper)
			require.NoError(t, err)
			assert.Equal(t, Fallback(), got)
			gen.AssertNumberOfCalls(t, "Generate", tt.wantCalls)
			assertSummaryCount(t, rec, SourceFallback)
		})
	}
}

func TestLLMSummarizer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).
		Return("", errors.New("context canceled"))

	_, err := New(gen, "m").Summarize(ctx, paper)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLMSummarizer_Cache(t *testing.T) {
	t.Run("命中缓存", func(t *testing.T) {
		cached := &domain.Summary{English: "cached"}
		cache := new(MockCache)
		cache.On("Get", mock.Anything, paper.ID).Return(cached, true, nil)
		gen := new(MockGenerator)

		got, err := New(gen, "m", WithCache(cache)).Summarize(context.Background(), paper)
		require.NoError(t, err)
		assert.Same(t, cached, got)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("未命中后写入缓存", func(t *testing.T) {
		cache := new(MockCache)
		cache.On("Get", mock.Anything, paper.ID).Return(nil, false, nil)
		cache.On("Set", mock.Anything, paper.ID, &domain.Summary{English: "EN"}).Return(nil)
		gen := new(MockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).Return(`{"summary_en":"EN"}`, nil)

		_, err := New(gen, "m", WithCache(cache)).Summarize(context.Background(), paper)
		require.NoError(t, err)
		cache.AssertExpectations(t)
	})

	t.Run("缓存出错不影响摘要", func(t *testing.T) {
		cache := new(MockCache)
		cache.On("Get", mock.Anything, paper.ID).Return(nil, false, errors.New("down"))
		cache.On("Set", mock.Anything, paper.ID, mock.Anything).Return(errors.New("down"))
		gen := new(MockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).Return(`{"summary_en":"EN"}`, nil)

		got, err := New(gen, "m", WithCache(cache)).Summarize(context.Background(), paper)
		require.NoError(t, err)
		assert.Equal(t, "EN", got.English)
	})

	t.Run("失败的摘要不写缓存", func(t *testing.T) {
		cache := new(MockCache)
		cache.On("Get", mock.Anything, paper.ID).Return(nil, false, nil)
		gen := new(MockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).Return("", common.NewError(common.ErrCodeProvider, "x"))

		got, err := New(gen, "m", WithCache(cache)).Summarize(context.Background(), paper)
		require.NoError(t, err)
		assert.Equal(t, Fallback(), got)
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})
}
