package engine

import (
	"context"
	"math"
	"strings"
)

// BM25 constants, the standard Okapi parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// applyFilter computes fit markdown for res according to f. The local
// engine calls it after HTML processing; the remote engine forwards the
// filter to the crawl service instead.
func applyFilter(ctx context.Context, res *CrawlResult, f *ContentFilter, llm *llmClient) error {
	if f == nil || res.Markdown == nil {
		return nil
	}
	raw := res.Markdown.RawMarkdown
	if raw == "" {
		return nil
	}

	switch f.Type {
	case FilterPruning:
		res.Markdown.FitMarkdown = pruneBlocks(raw, f.MinWordThreshold)
	case FilterBM25:
		if f.Query == "" {
			return nil
		}
		res.Markdown.FitMarkdown = bm25Filter(raw, f.Query, f.Threshold)
	case FilterLLM:
		fit, err := llm.FilterContent(ctx, raw, f)
		if err != nil {
			return err
		}
		res.Markdown.FitMarkdown = fit
	}
	return nil
}

func splitBlocks(markdown string) []string {
	var blocks []string
	for _, b := range strings.Split(markdown, "\n\n") {
		if strings.TrimSpace(b) != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// pruneBlocks keeps only blocks holding at least minWords words.
func pruneBlocks(markdown string, minWords int) string {
	if minWords <= 0 {
		return markdown
	}
	var kept []string
	for _, b := range splitBlocks(markdown) {
		if countWords(b) >= minWords {
			kept = append(kept, b)
		}
	}
	return strings.Join(kept, "\n\n")
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// bm25Filter ranks markdown blocks against query with Okapi BM25 and
// keeps those scoring at or above threshold, in document order.
func bm25Filter(markdown, query string, threshold float64) string {
	blocks := splitBlocks(markdown)
	if len(blocks) == 0 {
		return ""
	}

	docs := make([][]string, len(blocks))
	totalLen := 0
	for i, b := range blocks {
		docs[i] = tokenize(b)
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return ""
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return ""
	}

	// Document frequency per query term.
	df := make(map[string]int, len(terms))
	for _, doc := range docs {
		present := make(map[string]bool)
		for _, tok := range doc {
			present[tok] = true
		}
		for _, t := range terms {
			if present[t] {
				df[t]++
			}
		}
	}

	n := float64(len(docs))
	idf := make(map[string]float64, len(terms))
	for _, t := range terms {
		d := float64(df[t])
		idf[t] = math.Log((n-d+0.5)/(d+0.5) + 1)
	}

	var kept []string
	for i, doc := range docs {
		tf := make(map[string]int)
		for _, tok := range doc {
			tf[tok]++
		}

		score := 0.0
		docLen := float64(len(doc))
		for _, t := range terms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			score += idf[t] * f * (bm25K1 + 1) /
				(f + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
		}

		if score >= threshold && score > 0 {
			kept = append(kept, blocks[i])
		}
	}
	return strings.Join(kept, "\n\n")
}
