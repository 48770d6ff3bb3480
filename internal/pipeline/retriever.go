package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"taskrelay/internal/logging"
	"taskrelay/internal/store"
)

// ContextItem is one retrieved prior record offered to the AI prompt.
type ContextItem struct {
	Type        string // "task" or "item"
	Title       string
	Description string
	Distance    float64
}

// SemanticSearcher is the store query surface the retriever needs.
type SemanticSearcher interface {
	SearchCollection(ctx context.Context, collection, query string, limit int) ([]store.SemanticHit, error)
}

// Retriever finds prior work related to a message. Retrieval is an
// enhancement, not a dependency: a disabled retriever and per-collection
// query failures both yield fewer context items, never an error.
type Retriever struct {
	searcher SemanticSearcher
}

// NewRetriever creates a context retriever over the semantic store.
func NewRetriever(searcher SemanticSearcher) *Retriever {
	return &Retriever{searcher: searcher}
}

// NewDisabledRetriever creates a retriever that returns no context. Used
// when the semantic store is unavailable at startup.
func NewDisabledRetriever() *Retriever {
	return &Retriever{}
}

// Search queries the tasks and items collections, each capped at
// maxResults, and merges the hits tasks-first. Each collection keeps its
// own similarity ordering; there is no global re-sort.
func (r *Retriever) Search(ctx context.Context, query string, maxResults int) []ContextItem {
	if r.searcher == nil || query == "" {
		return nil
	}

	var taskHits, itemHits []store.SemanticHit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if taskHits, err = r.searcher.SearchCollection(gctx, store.CollectionTasks, query, maxResults); err != nil {
			logging.ProcessorDebug("Task-collection retrieval failed: %v", err)
			taskHits = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if itemHits, err = r.searcher.SearchCollection(gctx, store.CollectionItems, query, maxResults); err != nil {
			logging.ProcessorDebug("Item-collection retrieval failed: %v", err)
			itemHits = nil
		}
		return nil
	})
	_ = g.Wait()

	items := make([]ContextItem, 0, len(taskHits)+len(itemHits))
	for _, hit := range taskHits {
		items = append(items, ContextItem{Type: "task", Title: hit.Title, Description: hit.Description, Distance: hit.Distance})
	}
	for _, hit := range itemHits {
		items = append(items, ContextItem{Type: "item", Title: hit.Title, Description: hit.Description, Distance: hit.Distance})
	}

	logging.ProcessorDebug("Context retrieval: %d task hits, %d item hits", len(taskHits), len(itemHits))
	return items
}
