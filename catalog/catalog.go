// Package catalog publishes the aggregated tools into a tooldiscovery index
// and documentation store so they can be searched and described.
//
// The catalog is a snapshot. Refresh rebuilds it from the aggregator; call
// it after tools are added, reloaded, or removed.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jonwraymond/tooldiscovery/index"
	"github.com/jonwraymond/tooldiscovery/search"
	"github.com/jonwraymond/tooldiscovery/tooldoc"
	"github.com/jonwraymond/toolfoundation/model"
	"github.com/rs/zerolog"

	"github.com/jonwraymond/toolcompiler/backend"
	"github.com/jonwraymond/toolcompiler/logging"
	"github.com/jonwraymond/toolcompiler/tool"
)

// DefaultLimit bounds Search when limit is not positive.
const DefaultLimit = 10

// Summary is a search hit.
type Summary = index.Summary

// Catalog indexes the tools of an aggregator.
//
// Contract:
// - Concurrency: safe for concurrent use; Refresh swaps the snapshot
// atomically.
// - Errors: Describe returns the tooldoc error for unknown tools.
type Catalog struct {
	agg *backend.Aggregator
	log zerolog.Logger

	mu    sync.RWMutex
	idx   index.Index
	docs  *tooldoc.InMemoryStore
	count int
}

// New creates an empty catalog over agg.
func New(agg *backend.Aggregator, logger *zerolog.Logger) *Catalog {
	c := &Catalog{agg: agg, log: logging.OrNop(logger)}
	c.idx, c.docs = newSnapshot()
	return c
}

func newSnapshot() (index.Index, *tooldoc.InMemoryStore) {
	idx := index.NewInMemoryIndex(index.IndexOptions{
		Searcher: search.NewBM25Searcher(search.BM25Config{}),
	})
	return idx, tooldoc.NewInMemoryStore(tooldoc.StoreOptions{Index: idx})
}

// Refresh rebuilds the catalog from the tools visible to the tenant in ctx.
// On error the previous snapshot is kept.
func (c *Catalog) Refresh(ctx context.Context) error {
	tools, err := c.agg.ListAllTools(ctx)
	if err != nil {
		return fmt.Errorf("refresh catalog: %w", err)
	}

	idx, docs := newSnapshot()
	for _, t := range tools {
		if err := idx.RegisterTool(t, model.NewLocalBackend(t.Namespace)); err != nil {
			return fmt.Errorf("index %s: %w", backend.FormatToolID(t.Namespace, t.Name), err)
		}
		if err := docs.RegisterDoc(backend.FormatToolID(t.Namespace, t.Name), docEntry(t)); err != nil {
			return fmt.Errorf("document %s: %w", backend.FormatToolID(t.Namespace, t.Name), err)
		}
	}

	c.mu.Lock()
	c.idx, c.docs, c.count = idx, docs, len(tools)
	c.mu.Unlock()
	c.log.Debug().Str(logging.FieldTenantID, tool.TenantFromContext(ctx)).Int("tools", len(tools)).Msg("catalog refreshed")
	return nil
}

func docEntry(t model.Tool) tooldoc.DocEntry {
	summary := t.Description
	if summary == "" {
		summary = t.Name
	}
	var notes []string
	if t.Title != "" && t.Title != t.Name {
		notes = append(notes, "Display name: "+t.Title)
	}
	if len(t.Tags) > 0 {
		notes = append(notes, "Tags: "+strings.Join(t.Tags, ", "))
	}
	return tooldoc.DocEntry{Summary: summary, Notes: strings.Join(notes, "\n")}
}

// Len returns the number of indexed tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Search ranks indexed tools against query.
func (c *Catalog) Search(query string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	c.mu.RLock()
	idx := c.idx
	c.mu.RUnlock()
	return idx.Search(query, limit)
}

// Namespaces returns the backend names with indexed tools.
func (c *Catalog) Namespaces() ([]string, error) {
	c.mu.RLock()
	idx := c.idx
	c.mu.RUnlock()
	ns, err := idx.ListNamespaces()
	if err != nil {
		return nil, err
	}
	slices.Sort(ns)
	return ns, nil
}

// Describe returns the documentation of a "namespace:tool" ID.
func (c *Catalog) Describe(id string, level tooldoc.DetailLevel) (tooldoc.ToolDoc, error) {
	c.mu.RLock()
	docs := c.docs
	c.mu.RUnlock()
	return docs.DescribeTool(id, level)
}
