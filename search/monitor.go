package search

import (
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/index"
	"github.com/poiesic/versegrounding/lexical"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Hooks for a phase that does not run are not called.
type SearchMonitor interface {
	Start(query string, strictness core.Strictness)
	// AfterSemanticSearch receives the semantic candidates, or the error
	// that made the query embedding fail.
	AfterSemanticSearch(matches []index.Match, err error)
	AfterLexicalSearch(keywords []string, matches []lexical.Match)
	Finish(results []*core.SearchResult, stats *core.SearchStats)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ core.Strictness)                  {}
func (n *noopMonitor) AfterSemanticSearch(_ []index.Match, _ error)       {}
func (n *noopMonitor) AfterLexicalSearch(_ []string, _ []lexical.Match)   {}
func (n *noopMonitor) Finish(_ []*core.SearchResult, _ *core.SearchStats) {}
