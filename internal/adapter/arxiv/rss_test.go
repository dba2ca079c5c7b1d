package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSSSource_FetchPapers(t *testing.T) {
	feed, err := os.ReadFile("testdata/cs.rss")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rss/cs", r.URL.Path)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write(feed)
	}))
	defer server.Close()

	src := NewRSSSource(server.URL+"/rss", server.Client())
	papers, err := src.FetchPapers(context.Background(), "cs")
	require.NoError(t, err)
	require.Len(t, papers, 1)

	p := papers[0]
	assert.Equal(t, "2401.00001", p.ID)
	assert.Equal(t, "Scaling Graph Neural Networks", p.Title)
	assert.Equal(t, "Ada Lovelace, Alan Turing", p.Authors)
	assert.Equal(t, "We scale graph neural networks.", p.Abstract)
	assert.Equal(t, "cs.LG; cs.AI", p.Subjects)
	assert.Equal(t, "https://arxiv.org/abs/2401.00001", p.MainPage)
}

func TestItemAbstract(t *testing.T) {
	assert.Equal(t, "plain text", itemAbstract("plain   text"))
	assert.Equal(t, "body", itemAbstract("arXiv:1 Announce Type: new\nAbstract: body"))
}
