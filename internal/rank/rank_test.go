// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/internal/mocks"
	"github.com/pdiddy/veritas/pkg/types"
)

func papers(source string, titles ...string) []types.PaperMetadata {
	out := make([]types.PaperMetadata, len(titles))
	for i, t := range titles {
		out[i] = types.PaperMetadata{Title: t, Source: source}
	}
	return out
}

func titles(s []Scored) []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Paper.Title
	}
	return out
}

func TestConvertQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	r := &Ranker{LLM: client, QueryModel: "fast"}

	client.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.Request) (string, error) {
			assert.Equal(t, "fast", req.Model)
			assert.Contains(t, req.Prompt, "Research question: What is PFAS?")
			return "  \"(PFAS OR polyfluoroalkyl)\n AND chemistry\"  ", nil
		})
	assert.Equal(t, "(PFAS OR polyfluoroalkyl) AND chemistry", r.ConvertQuery(context.Background(), "  What is PFAS?  "))

	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", errors.New("down"))
	long := strings.Repeat("word ", 100)
	got := r.ConvertQuery(context.Background(), long)
	assert.Len(t, got, 200)
	assert.Equal(t, FallbackQuery(long), got)

	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("   ", nil)
	assert.Equal(t, "a b", r.ConvertQuery(context.Background(), "a\n\tb"))
}

func TestRankKeepsHighScoresSorted(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	r := &Ranker{LLM: client, Model: "big", MinScore: 6}

	client.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.Request) (string, error) {
			assert.True(t, req.JSON)
			assert.Equal(t, "big", req.Model)
			assert.Contains(t, req.Prompt, "Below are 4 paper candidates.")
			assert.Contains(t, req.Prompt, "Abstract: No summary available...")
			return `{"question_field":"Chemistry","scores":[7,0,9.5,6]}`, nil
		})

	got := r.Rank(context.Background(), "q", papers("arxiv", "a", "b", "c", "d"))
	assert.Equal(t, []string{"c", "a"}, titles(got))
	assert.Equal(t, 9.5, got[0].Score)
}

func TestRankFallsBackOnBadOutput(t *testing.T) {
	for name, resp := range map[string]string{
		"not json":     "sure, here you go",
		"wrong length": `{"scores":[9]}`,
		"bad type":     `{"scores":["high","low","mid","x"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockClient(ctrl)
			client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(resp, nil)

			r := &Ranker{LLM: client, MinScore: 6}
			got := r.Rank(context.Background(), "q", papers("arxiv", "a", "b", "c", "d"))
			assert.Equal(t, []string{"a", "b", "c"}, titles(got))
		})
	}
}

func TestRankEmpty(t *testing.T) {
	r := &Ranker{LLM: mocks.NewMockClient(gomock.NewController(t))}
	assert.Empty(t, r.Rank(context.Background(), "q", nil))
}

func TestSelectFillsFromOpenAlex(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	r := &Ranker{LLM: client, MinScore: 6}

	candidates := append(papers("arxiv", "p1", "p2"), papers("openalex", "o1", "o2")...)
	candidates = append(candidates, papers("semantic_scholar,openalex", "p3")...)

	gomock.InOrder(
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req llm.Request) (string, error) {
				require.Contains(t, req.Prompt, "Below are 3 paper candidates.")
				return `{"scores":[8,2,10]}`, nil
			}),
		client.EXPECT().Complete(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req llm.Request) (string, error) {
				require.Contains(t, req.Prompt, "Title: o1")
				return `{"scores":[7,9]}`, nil
			}),
	)

	got := r.Select(context.Background(), "q", candidates, 3)
	assert.Equal(t, []string{"p3", "p1", "o2"}, titles(got))
}

func TestSelectSkipsOpenAlexWhenFull(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(`{"scores":[9,9,9,9]}`, nil).Times(1)

	r := &Ranker{LLM: client, MinScore: 6}
	candidates := append(papers("arxiv", "a", "b", "c", "d"), papers("openalex", "o")...)
	got := r.Select(context.Background(), "q", candidates, 3)
	assert.Equal(t, []string{"a", "b", "c"}, titles(got))
}

func TestSelectOpenAlexOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Complete(gomock.Any(), gomock.Any()).Return(`{"scores":[1,2]}`, nil)

	r := &Ranker{LLM: client, MinScore: 6}
	assert.Empty(t, r.Select(context.Background(), "q", papers("openalex", "o1", "o2"), 3))
}
