// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank turns a research question into a search query and scores
// candidate papers for relevance with an LLM.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/pkg/types"
)

const querySystem = "You convert research questions into precise arXiv search queries. " +
	"arXiv works best with technical terms joined by boolean operators (AND, OR). " +
	"STRATEGY: Always expand acronyms. Use a multi-part query: (Full Name OR Acronym) AND Technical Keywords. " +
	"Example for PFAS: (\"Per- and polyfluoroalkyl substances\" OR PFAS) AND chemistry. " +
	"Output ONLY the search query, no quotes, no explanation."

const queryPrompt = `Research question: %s

Convert this into a short arXiv search query (keywords or phrase) that would find relevant academic papers. Output only the search query, nothing else.`

const rankSystem = "You are a research relevance filter. You categorize research papers and identify domain-mismatches. Output valid JSON."

const rankPrompt = `Research Question: %s

Below are %d paper candidates.

TASK:
1. Identify the primary ACADEMIC FIELD of the Research Question (e.g., "Chemistry", "Computer Science", "Physics").
2. For each paper candidate, identify its ACADEMIC FIELD based on the title and abstract.
3. Rank relevance (0-10):
   - IF the paper's field DOES NOT MATCH the question's field, score it 0.
   - ELSE score based on how well it answers the specific question.

BE STRICT: "PFAS" (polyfluoroalkyl substances) is Chemistry. "PFAs" (Finite Automata) is Computer Science. DO NOT MIX THEM.

CANDIDATES:
%s

OUTPUT FORMAT:
{"question_field": "Field Name", "scores": [score_0, score_1, ...]}`

var scoreSchema = llm.MustSchema(`{
  "type": "object",
  "required": ["scores"],
  "properties": {
    "question_field": {"type": "string"},
    "scores": {"type": "array", "items": {"type": "number"}}
  }
}`)

type scoreResponse struct {
	QuestionField string    `json:"question_field"`
	Scores        []float64 `json:"scores"`
}

const (
	fallbackQueryLen = 200
	maxQueryLen      = 300
	abstractLen      = 500

	// fallbackCount is how many candidates are kept, in order, when the
	// model's scores cannot be used.
	fallbackCount = 3
)

// Scored is a candidate with its relevance score.
type Scored struct {
	Paper types.PaperMetadata
	Score float64
}

// Ranker converts questions to queries and scores candidates.
type Ranker struct {
	LLM llm.Client

	// Model scores candidates; QueryModel converts questions.
	Model      string
	QueryModel string

	// MinScore is the exclusive lower bound for a kept candidate.
	MinScore float64

	Logger *slog.Logger
}

func (r *Ranker) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// FallbackQuery is the whitespace-collapsed question truncated to 200
// characters.
func FallbackQuery(question string) string {
	return truncateRunes(strings.Join(strings.Fields(question), " "), fallbackQueryLen)
}

// ConvertQuery rewrites question into a concise keyword query. Any model
// failure yields FallbackQuery(question).
func (r *Ranker) ConvertQuery(ctx context.Context, question string) string {
	raw, err := r.LLM.Complete(ctx, llm.Request{
		Model:  r.QueryModel,
		System: querySystem,
		Prompt: fmt.Sprintf(queryPrompt, strings.TrimSpace(question)),
	})
	if err != nil {
		r.logger().Warn("query conversion failed, using question text", "error", err)
		return FallbackQuery(question)
	}
	q := strings.Join(strings.Fields(raw), " ")
	if len(q) >= 2 && (q[0] == '"' || q[0] == '\'') && q[len(q)-1] == q[0] {
		q = strings.TrimSpace(q[1 : len(q)-1])
	}
	if q == "" {
		return FallbackQuery(question)
	}
	return truncateRunes(q, maxQueryLen)
}

// Rank scores candidates and returns those scoring above MinScore, highest
// first. When the model fails or returns a score list of the wrong length,
// the first three candidates are returned unscored.
func (r *Ranker) Rank(ctx context.Context, question string, candidates []types.PaperMetadata) []Scored {
	if len(candidates) == 0 {
		return nil
	}

	items := make([]string, len(candidates))
	for i, c := range candidates {
		abstract := c.Abstract
		if abstract == "" {
			abstract = "No summary available"
		}
		items[i] = fmt.Sprintf("ID: %d\nTitle: %s\nAbstract: %s...", i, c.Title, truncateRunes(abstract, abstractLen))
	}

	raw, err := r.LLM.Complete(ctx, llm.Request{
		Model:  r.Model,
		System: rankSystem,
		Prompt: fmt.Sprintf(rankPrompt, question, len(candidates), strings.Join(items, "---")),
		JSON:   true,
	})
	var resp scoreResponse
	if err == nil {
		err = scoreSchema.Decode(raw, &resp)
	}
	if err == nil && len(resp.Scores) != len(candidates) {
		err = fmt.Errorf("got %d scores for %d candidates", len(resp.Scores), len(candidates))
	}
	if err != nil {
		r.logger().Warn("ranking failed, keeping first candidates", "error", err)
		out := make([]Scored, 0, fallbackCount)
		for _, c := range candidates[:min(fallbackCount, len(candidates))] {
			out = append(out, Scored{Paper: c})
		}
		return out
	}

	scored := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		if resp.Scores[i] > r.MinScore {
			scored = append(scored, Scored{Paper: c, Score: resp.Scores[i]})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	r.logger().Info("ranked candidates", "field", resp.QuestionField, "candidates", len(candidates), "kept", len(scored))
	return scored
}

// Select picks up to maxPapers candidates. Papers from the primary backends
// (arXiv, Semantic Scholar) are ranked first; OpenAlex-only papers are
// ranked only to fill the remaining slots.
func (r *Ranker) Select(ctx context.Context, question string, candidates []types.PaperMetadata, maxPapers int) []Scored {
	var primary, secondary []types.PaperMetadata
	for _, c := range candidates {
		if c.FromPrimary() {
			primary = append(primary, c)
		} else {
			secondary = append(secondary, c)
		}
	}

	var top []Scored
	if len(primary) > 0 {
		top = r.Rank(ctx, question, primary)
		top = top[:min(maxPapers, len(top))]
	}
	if remaining := maxPapers - len(top); remaining > 0 && len(secondary) > 0 {
		r.logger().Info("filling slots from OpenAlex", "slots", remaining, "candidates", len(secondary))
		fill := r.Rank(ctx, question, secondary)
		top = append(top, fill[:min(remaining, len(fill))]...)
	}
	return top
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
