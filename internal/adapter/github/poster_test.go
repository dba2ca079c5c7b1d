package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"

	"github.com/google/go-github/v53/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMockGitHubServer 创建一个模拟的 GitHub API 服务器
func setupMockGitHubServer(t *testing.T, handler http.Handler) *Poster {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	baseURL, _ := url.Parse(server.URL + "/")
	client.BaseURL = baseURL

	return &Poster{client: client, owner: "me", repo: "digest", labels: []string{"arxiv"}, retryDelay: time.Millisecond}
}

func testDigest() *domain.Digest {
	return &domain.Digest{
		Date:  time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Topic: "Computer Science",
		Records: []domain.RelevanceRecord{
			{Paper: domain.Paper{Title: "One", Authors: "A", MainPage: "https://arxiv.org/abs/1"}},
			{Paper: domain.Paper{Title: "Two", Authors: "B", MainPage: "https://arxiv.org/abs/2"}},
		},
	}
}

type recorder struct {
	mu       sync.Mutex
	created  []github.IssueRequest
	comments map[string][]string
}

func (r *recorder) handler(t *testing.T, existing []*github.Issue) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/me/digest/issues", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			assert.Equal(t, "all", req.URL.Query().Get("state"))
			assert.Equal(t, "arxiv", req.URL.Query().Get("labels"))
			_ = json.NewEncoder(w).Encode(existing)
		case http.MethodPost:
			var body github.IssueRequest
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			r.mu.Lock()
			r.created = append(r.created, body)
			r.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(&github.Issue{Number: github.Int(42), Title: body.Title})
		}
	})
	mux.HandleFunc("/repos/me/digest/issues/", func(w http.ResponseWriter, req *http.Request) {
		var body github.IssueComment
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		r.mu.Lock()
		r.comments[req.URL.Path] = append(r.comments[req.URL.Path], body.GetBody())
		r.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&github.IssueComment{ID: github.Int64(1)})
	})
	return mux
}

func TestPoster_Notify_CreatesIssue(t *testing.T) {
	rec := &recorder{comments: map[string][]string{}}
	poster := setupMockGitHubServer(t, rec.handler(t, nil))

	require.NoError(t, poster.Notify(context.Background(), testDigest()))

	require.Len(t, rec.created, 1)
	assert.Equal(t, "Personalized arXiv Digest - 2024-01-02", rec.created[0].GetTitle())
	assert.Contains(t, rec.created[0].GetBody(), "Topic: Computer Science")
	assert.Equal(t, []string{"arxiv"}, rec.created[0].GetLabels())

	comments := rec.comments["/repos/me/digest/issues/42/comments"]
	require.Len(t, comments, 2)
	assert.Contains(t, comments[0], "**[1]** [One]")
	assert.Contains(t, comments[1], "**[2]** [Two]")
}

func TestPoster_Notify_ReusesExistingIssue(t *testing.T) {
	existing := []*github.Issue{
		{Number: github.Int(7), Title: github.String("Personalized arXiv Digest - 2024-01-01")},
		{Number: github.Int(8), Title: github.String("Personalized arXiv Digest - 2024-01-02")},
	}
	rec := &recorder{comments: map[string][]string{}}
	poster := setupMockGitHubServer(t, rec.handler(t, existing))

	require.NoError(t, poster.Notify(context.Background(), testDigest()))

	assert.Empty(t, rec.created)
	assert.Len(t, rec.comments["/repos/me/digest/issues/8/comments"], 2)
}

func TestPoster_Notify_Errors(t *testing.T) {
	var calls int
	var mu sync.Mutex
	poster := setupMockGitHubServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"bad gateway"}`))
	}))

	err := poster.Notify(context.Background(), testDigest())
	require.Error(t, err)
	assert.True(t, common.HasCode(err, common.ErrCodeNotification))
	assert.Equal(t, 4, calls)
}

func TestPoster_Notify_NotRetriedOnClientError(t *testing.T) {
	var calls int
	poster := setupMockGitHubServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))

	err := poster.Notify(context.Background(), testDigest())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewPoster(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		repository string
		wantErr    bool
	}{
		{name: "正常", token: "t", repository: "me/digest"},
		{name: "缺少 token", repository: "me/digest", wantErr: true},
		{name: "仓库格式错误", token: "t", repository: "digest", wantErr: true},
		{name: "仓库名为空", token: "t", repository: "me/", wantErr: true},
		{name: "多级路径", token: "t", repository: "me/digest/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPoster(tt.token, tt.repository, nil)
			if tt.wantErr {
				assert.True(t, common.HasCode(err, common.ErrCodeConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "me", p.owner)
			assert.Equal(t, "digest", p.repo)
		})
	}
}
