// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quotes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/veritas/internal/cache"
	"github.com/pdiddy/veritas/internal/llm"
	"github.com/pdiddy/veritas/pkg/types"
)

const ideaSystem = "You are a research writing assistant. " +
	"Given a verbatim quote from a source, write ONE concise sentence that captures the quote's core idea " +
	"in neutral academic language suitable for a paper. " +
	"Do not include quotation marks. Do not add facts not present in the quote. " +
	"Do not mention page numbers or filenames. Keep it a single sentence."

const ideaPrompt = `Research question (context):
%s

Quote:
%s

Task:
Write exactly ONE sentence that rephrases the quote into a strong, paper-usable idea/claim.
Constraints:
- Neutral academic tone.
- No new facts beyond the quote.
- No quotes, no citations, no source mentions.
- One sentence only.`

// Synthesizer writes one idea sentence per quote.
type Synthesizer struct {
	LLM   llm.Client
	Model string

	Concurrency int

	// Cache stores ideas keyed by normalized quote text. Nil disables it.
	Cache cache.Store

	Logger *slog.Logger

	// Progress, when set, is called after each quote with the number done.
	Progress func(done, total int)
}

// Synthesize fills Idea on each quote in place. Quotes whose synthesis
// fails keep an empty idea; only context cancellation is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, qs []types.Quote, question string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.Concurrency))
	for i := range qs {
		g.Go(func() error {
			idea, err := s.idea(gctx, qs[i].Text, question)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("idea synthesis failed", "file", qs[i].Filename, "page", qs[i].Page, "error", err)
			}
			qs[i].Idea = idea
			if s.Progress != nil {
				s.Progress(int(done.Add(1)), len(qs))
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Synthesizer) idea(ctx context.Context, quote, question string) (string, error) {
	key := dedupKey(quote)
	if key == "" {
		return "", nil
	}
	sum := sha256.Sum256([]byte(key))
	cacheKey := "idea:" + hex.EncodeToString(sum[:])

	if s.Cache != nil {
		if e, ok, err := s.Cache.Get(ctx, cacheKey); err == nil && ok {
			return string(e.Body), nil
		}
	}

	rq := question
	if strings.TrimSpace(rq) == "" {
		rq = "N/A"
	}
	raw, err := s.LLM.Complete(ctx, llm.Request{
		Model:  s.Model,
		System: ideaSystem,
		Prompt: fmt.Sprintf(ideaPrompt, rq, NormalizeWS(quote)),
	})
	if err != nil {
		return "", err
	}
	idea := firstLine(raw)

	if s.Cache != nil && idea != "" {
		if err := s.Cache.Put(ctx, cacheKey, cache.Entry{Body: []byte(idea), RetrievedAt: time.Now()}); err != nil && s.Logger != nil {
			s.Logger.Warn("idea cache write failed", "error", err)
		}
	}
	return idea, nil
}

// firstLine keeps the first line of a model response, whitespace-collapsed.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return NormalizeWS(s)
}
