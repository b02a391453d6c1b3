// Package retrieval supplies policy excerpts and historical precedents for
// reviewer briefings. Results are display-only context; authorization logic
// never branches on them.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Limits on what a briefing may carry.
const (
	MaxPolicies   = 2
	MaxPrecedents = 2
)

// Context is the retrieved material for one query.
type Context struct {
	Policies   []string `json:"policies"`
	Precedents []string `json:"precedents"`
}

// Retriever finds policy and precedent snippets relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*Context, error)
}

// Document is one entry in the corpus.
type Document struct {
	Kind string // "policy" or "precedent"
	Text string
}

// CorpusRetriever scores an in-memory corpus by keyword overlap with the
// query. It is the deterministic retrieval backend; a vector store can
// substitute behind the same interface.
type CorpusRetriever struct {
	corpus []Document
	logger *zap.Logger
}

// NewCorpusRetriever creates a retriever over the given corpus. A nil corpus
// uses the built-in municipal policy set.
func NewCorpusRetriever(corpus []Document, logger *zap.Logger) *CorpusRetriever {
	if corpus == nil {
		corpus = DefaultCorpus()
	}
	return &CorpusRetriever{corpus: corpus, logger: logger}
}

// DefaultCorpus returns the built-in policy and precedent snippets.
func DefaultCorpus() []Document {
	return []Document{
		{Kind: "policy", Text: "Municipal Code §4.2.1: Projects exceeding $10M require City Council approval and public hearing."},
		{Kind: "policy", Text: "Fiscal Policy FP-2024-03: High-risk infrastructure projects (score >= 6) must demonstrate community benefit exceeding 3x cost."},
		{Kind: "policy", Text: "Safety Mandate SM-101: Legal mandates cannot be rejected without documented alternative compliance path."},
		{Kind: "precedent", Text: "Water Main Replacement (2023): $12M project, approved after 2 council sessions. Completed on time."},
		{Kind: "precedent", Text: "Bridge Retrofit Project (2022): $8M, initially rejected for budget, approved in Q2 after reallocation."},
		{Kind: "precedent", Text: "Storm Drain Expansion (2024): $15M, delayed 6 months due to environmental review requirements."},
	}
}

type scoredDoc struct {
	doc   Document
	score int
	index int
}

// Retrieve returns the best-matching policies and precedents for the query.
// With no keyword overlap anywhere, the leading corpus entries are returned
// so a briefing always has something to cite.
func (r *CorpusRetriever) Retrieve(_ context.Context, query string) (*Context, error) {
	terms := tokenize(query)

	scored := make([]scoredDoc, 0, len(r.corpus))
	for i, doc := range r.corpus {
		docTerms := tokenize(doc.Text)
		score := 0
		for term := range terms {
			if docTerms[term] {
				score++
			}
		}
		scored = append(scored, scoredDoc{doc: doc, score: score, index: i})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].index < scored[j].index
	})

	result := &Context{}
	for _, s := range scored {
		switch s.doc.Kind {
		case "policy":
			if len(result.Policies) < MaxPolicies {
				result.Policies = append(result.Policies, s.doc.Text)
			}
		case "precedent":
			if len(result.Precedents) < MaxPrecedents {
				result.Precedents = append(result.Precedents, s.doc.Text)
			}
		}
	}

	r.logger.Debug("Retrieved briefing context",
		zap.Int("policies", len(result.Policies)),
		zap.Int("precedents", len(result.Precedents)))
	return result, nil
}

func tokenize(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:()\"'")
		if len(word) > 3 {
			terms[word] = true
		}
	}
	return terms
}
