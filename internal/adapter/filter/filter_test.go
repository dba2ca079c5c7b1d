package filter

import (
	"context"
	"errors"
	"testing"

	"arxiv-digest/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRepository 模拟Repository接口
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) SaveRun(ctx context.Context, run *domain.DigestRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRepository) SaveEntries(ctx context.Context, entries []*domain.PaperEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *MockRepository) Exists(ctx context.Context, paperID string) (bool, error) {
	args := m.Called(ctx, paperID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkAsNotified(ctx context.Context, paperIDs []string) error {
	return m.Called(ctx, paperIDs).Error(0)
}

func (m *MockRepository) RecentEntries(ctx context.Context, limit int) ([]*domain.PaperEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]*domain.PaperEntry)
	return entries, args.Error(1)
}

func ids(papers []domain.Paper) []string {
	out := make([]string, 0, len(papers))
	for _, p := range papers {
		out = append(out, p.ID)
	}
	return out
}

func TestPaperFilter_FilterByCategories(t *testing.T) {
	papers := []domain.Paper{
		{ID: "1", Subjects: "Machine Learning (cs.LG); Artificial Intelligence (cs.AI)"},
		{ID: "2", Subjects: "Robotics (cs.RO)"},
		{ID: "3", Subjects: "Computation and Language (cs.CL)"},
		{ID: "4", Subjects: ""},
	}

	tests := []struct {
		name       string
		categories []string
		expected   []string
	}{
		{name: "单个分类", categories: []string{"Robotics"}, expected: []string{"2"}},
		{name: "多个分类保持原顺序", categories: []string{"Computation and Language", "Artificial Intelligence"}, expected: []string{"1", "3"}},
		{name: "没有匹配", categories: []string{"Quantum Physics"}, expected: []string{}},
		{name: "不限分类", categories: nil, expected: []string{"1", "2", "3", "4"}},
		{name: "代码不是分类名", categories: []string{"cs.RO"}, expected: []string{}},
	}

	f := NewPaperFilter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ids(f.FilterByCategories(papers, tt.categories)))
		})
	}
}

func TestPaperFilter_FilterUnseen(t *testing.T) {
	papers := []domain.Paper{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	tests := []struct {
		name      string
		setupMock func(*MockRepository)
		expected  []string
	}{
		{
			name: "跳过已推送的论文",
			setupMock: func(m *MockRepository) {
				m.On("Exists", mock.Anything, "a").Return(false, nil)
				m.On("Exists", mock.Anything, "b").Return(true, nil)
				m.On("Exists", mock.Anything, "c").Return(false, nil)
			},
			expected: []string{"a", "c"},
		},
		{
			name: "查询失败时保留",
			setupMock: func(m *MockRepository) {
				m.On("Exists", mock.Anything, mock.Anything).Return(false, errors.New("db down"))
			},
			expected: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			tt.setupMock(repo)

			result, err := NewPaperFilter(repo).FilterUnseen(context.Background(), papers)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(result))
			repo.AssertExpectations(t)
		})
	}
}

func TestPaperFilter_FilterUnseen_NoRepository(t *testing.T) {
	papers := []domain.Paper{{ID: "a"}}
	result, err := NewPaperFilter(nil).FilterUnseen(context.Background(), papers)
	require.NoError(t, err)
	assert.Equal(t, papers, result)
}

func TestPaperFilter_FilterUnseen_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPaperFilter(new(MockRepository)).FilterUnseen(ctx, []domain.Paper{{ID: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
}
