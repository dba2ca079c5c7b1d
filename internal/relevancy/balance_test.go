package relevancy

import (
	"fmt"
	"testing"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, subjects string, score int) domain.RelevanceRecord {
	return domain.RelevanceRecord{
		Paper:  domain.Paper{ID: id, Title: id, Subjects: subjects},
		Score:  score,
		Scored: true,
	}
}

func TestBalance_ScenarioC(t *testing.T) {
	categories := []string{"A", "B", "C"}
	var records []domain.RelevanceRecord
	for i := 0; i < 300; i++ {
		c := categories[i%3]
		records = append(records, record(fmt.Sprintf("%s-%03d", c, i), c+" (x.A)", i%10+1))
	}

	out, err := Balance(records, categories, 30)
	require.NoError(t, err)
	assert.Len(t, out, 30)

	counts := map[string]int{}
	for i, r := range out {
		counts[r.Subjects]++
		// 每个分类内部按分数降序
		if i%10 != 0 {
			assert.GreaterOrEqual(t, out[i-1].Score, r.Score)
		}
	}
	assert.Equal(t, map[string]int{"A (x.A)": 10, "B (x.A)": 10, "C (x.A)": 10}, counts)

	// 分类按调用方给出的顺序拼接
	assert.Equal(t, "A (x.A)", out[0].Subjects)
	assert.Equal(t, "B (x.A)", out[10].Subjects)
	assert.Equal(t, "C (x.A)", out[20].Subjects)
}

func TestBalance_ScenarioD_UnmatchedExcluded(t *testing.T) {
	records := []domain.RelevanceRecord{
		record("1", "Robotics (cs.RO)", 10),
		record("2", "Machine Learning (cs.LG)", 9),
		record("3", "Machine Learning (cs.LG)", 8),
		record("4", "Machine Learning (cs.LG)", 7),
	}

	out, err := Balance(records, []string{"Machine Learning"}, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.NotEqual(t, "1", r.ID)
	}
}

func TestBalance_FirstMatchWins(t *testing.T) {
	records := []domain.RelevanceRecord{
		record("both", "Computation and Language (cs.CL); Machine Learning (cs.LG)", 9),
		record("ml-1", "Machine Learning (cs.LG)", 8),
		record("ml-2", "Machine Learning (cs.LG)", 7),
		record("cl-1", "Computation and Language (cs.CL)", 6),
	}

	out, err := Balance(records, []string{"Machine Learning", "Computation and Language"}, 2)
	require.NoError(t, err)

	ids := []string{out[0].ID, out[1].ID}
	assert.Equal(t, []string{"both", "cl-1"}, ids)
}

func TestBalance_LeftoverCapacityNotRedistributed(t *testing.T) {
	records := []domain.RelevanceRecord{
		record("a1", "A", 9), record("a2", "A", 8), record("a3", "A", 7), record("a4", "A", 6),
		record("b1", "B", 5),
	}

	out, err := Balance(records, []string{"A", "B"}, 4)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestBalance_UnscoredKeepsOrder(t *testing.T) {
	records := []domain.RelevanceRecord{
		{Paper: domain.Paper{ID: "1", Subjects: "A"}},
		{Paper: domain.Paper{ID: "2", Subjects: "A"}},
		{Paper: domain.Paper{ID: "3", Subjects: "A"}},
	}

	out, err := Balance(records, []string{"A"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "2", out[1].ID)
}

func TestBalance_UnderCapReturnsInput(t *testing.T) {
	records := []domain.RelevanceRecord{record("1", "Robotics", 3)}

	out, err := Balance(records, []string{"A"}, 5)
	require.NoError(t, err)
	assert.Equal(t, records, out)
}

func TestBalance_Bounds(t *testing.T) {
	categories := []string{"A", "B", "C", "A"}
	var records []domain.RelevanceRecord
	for i := 0; i < 50; i++ {
		records = append(records, record(fmt.Sprint(i), []string{"A", "B", "C", "D"}[i%4], i%7))
	}

	for maxTotal := 1; maxTotal < 50; maxTotal++ {
		out, err := Balance(records, categories, maxTotal)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(out), maxTotal)
		assert.LessOrEqual(t, len(out), (maxTotal/len(categories))*len(categories))
	}
}

func TestBalance_ConfigurationErrors(t *testing.T) {
	records := []domain.RelevanceRecord{record("1", "A", 1)}

	_, err := Balance(records, nil, 10)
	assert.True(t, common.HasCode(err, common.ErrCodeConfiguration))

	_, err = Balance(records, []string{"A"}, 0)
	assert.True(t, common.HasCode(err, common.ErrCodeConfiguration))
}
