// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review turns verified quotes into the executive summary, the
// literature review document, the per-source view, and the citation index.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/pkg/types"
)

// NoEvidence is the summary used when a job produced no quotes.
const NoEvidence = "No relevant evidence was found for this question."

const (
	summaryItems    = 30
	summaryQuoteLen = 200
	itemsPerSource  = 10
	reviewMaxTokens = 4000
)

const summarySystem = "You are a research assistant. Given a research question and a list of verbatim quotes " +
	"from sources, write ONE short paragraph (3-5 sentences) that summarizes the key evidence " +
	"and how it relates to the research question. Use neutral academic tone. Do not invent facts."

const summaryPrompt = `Research question: %s

Evidence from sources (quotes/ideas):
%s

Task: Write one short paragraph summarizing what this evidence shows regarding the research question.`

const reviewSystem = "You are an expert research assistant specializing in literature reviews. " +
	"Given a research question and evidence from multiple sources, write a comprehensive, " +
	"well-structured literature review in academic style. Use proper section headings, " +
	"synthesize findings across sources, identify themes, and provide critical analysis. " +
	"Maintain neutral, scholarly tone. " +
	"Use numbered citations: in-text cite only the number in square brackets, e.g. [1], [2]. " +
	"In the References section, list sources as a numbered list (1. ..., 2. ..., etc.)."

const reviewPrompt = `Research Question: %[1]s

Sources Analyzed: %[2]d papers
Evidence Items: %[3]d findings

Source numbering (use these numbers for in-text citations and references):
%[4]s

Evidence from Sources:
%[5]s

Task: Write a comprehensive literature review (1500-2000 words) structured as follows:

# Literature Review: %[1]s

## 1. Introduction
- Background and context for this research question
- Why this question matters
- Scope of this review (sources analyzed, approach)

## 2. Methodology
- Search strategy and databases used
- Number of sources analyzed
- Selection criteria

## 3. Key Findings
Organize findings into 2-4 major themes. For each theme:
- Synthesize evidence across multiple sources
- Highlight consensus and contradictions
- Provide critical analysis

## 4. Discussion
- Cross-cutting patterns across all findings
- Gaps in current research
- Conflicting evidence and how to interpret it
- Limitations of reviewed literature

## 5. Conclusions
- Summary of key insights
- Implications for practice/research
- Future directions

## References
List all sources as a numbered bibliography. Use the same numbers as in-text:
1. <full reference for source 1>
2. <full reference for source 2>
... and so on for each source.

Requirements:
- Use markdown formatting with proper headings
- In-text citations: use only the number in square brackets, e.g. [1], [2], [3]
- References section: numbered list (1. ..., 2. ..., etc.) matching the citation numbers
- Synthesize across sources (don't just list findings)
- Maintain academic tone
- Identify themes, not just summarize`

// Writer produces the summary and review documents.
type Writer struct {
	LLM   llm.Client
	Model string

	Logger *slog.Logger
}

// Review is a generated literature review with its metadata.
type Review struct {
	Text     string
	Metadata types.ReviewMetadata
}

// Summary writes a one-paragraph executive summary from up to 30 evidence
// lines, preferring ideas over raw quotes.
func (w *Writer) Summary(ctx context.Context, question string, rows []types.Quote) (string, error) {
	if len(rows) == 0 {
		return NoEvidence, nil
	}
	lines := make([]string, 0, min(summaryItems, len(rows)))
	for _, r := range rows[:min(summaryItems, len(rows))] {
		if idea := strings.TrimSpace(r.Idea); idea != "" {
			lines = append(lines, fmt.Sprintf("- [%s]: %s", r.Filename, idea))
			continue
		}
		q := strings.TrimSpace(r.Text)
		if rs := []rune(q); len(rs) > summaryQuoteLen {
			q = string(rs[:summaryQuoteLen]) + "..."
		}
		lines = append(lines, fmt.Sprintf("- [%s]: %q", r.Filename, q))
	}

	out, err := w.LLM.Complete(ctx, llm.Request{
		Model:  w.Model,
		System: summarySystem,
		Prompt: fmt.Sprintf(summaryPrompt, question, strings.Join(lines, "\n")),
	})
	if err != nil {
		return "", fmt.Errorf("generating summary: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Write generates the literature review. Sources are numbered in filename
// order; each contributes at most 10 evidence items. When citations carry
// an inferred reference it replaces the filename in the numbering list.
func (w *Writer) Write(ctx context.Context, question string, rows []types.Quote, citations []types.Citation) (Review, error) {
	if len(rows) == 0 {
		return Review{}, fmt.Errorf("no evidence to review")
	}

	byFile := make(map[string][]string)
	for _, r := range rows {
		content := strings.TrimSpace(r.Idea)
		if content == "" {
			content = strings.TrimSpace(r.Text)
		}
		if _, ok := byFile[r.Filename]; !ok {
			byFile[r.Filename] = nil
		}
		if content != "" {
			byFile[r.Filename] = append(byFile[r.Filename], content)
		}
	}
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	refs := make(map[string]string, len(citations))
	for _, c := range citations {
		if c.Reference != "" {
			refs[c.Filename] = c.Reference
		}
	}

	var numbering, evidence []string
	for i, f := range files {
		name := f
		if ref, ok := refs[f]; ok {
			name = ref
		}
		numbering = append(numbering, fmt.Sprintf("%d. %s", i+1, name))

		items := byFile[f]
		var b strings.Builder
		fmt.Fprintf(&b, "**[%d] %s**", i+1, f)
		for _, c := range items[:min(itemsPerSource, len(items))] {
			b.WriteString("\n  - " + c)
		}
		evidence = append(evidence, b.String())
	}

	text, err := w.LLM.Complete(ctx, llm.Request{
		Model:     w.Model,
		System:    reviewSystem,
		Prompt:    fmt.Sprintf(reviewPrompt, question, len(files), len(rows), strings.Join(numbering, "\n"), strings.Join(evidence, "\n")),
		MaxTokens: reviewMaxTokens,
	})
	if err != nil {
		return Review{}, fmt.Errorf("generating literature review: %w", err)
	}
	text = strings.TrimSpace(text)
	return Review{
		Text: text,
		Metadata: types.ReviewMetadata{
			WordCount:       len(strings.Fields(text)),
			SourcesAnalyzed: len(files),
			EvidenceItems:   len(rows),
		},
	}, nil
}
