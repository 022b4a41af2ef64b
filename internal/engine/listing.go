package engine

import (
	"context"
	"fmt"

	"github.com/eugenetaranov/rcc/internal/connector"
)

// Item is one immediate child of the listed directory with its recursive size.
type Item struct {
	connector.Entry
	Total Size
}

// Summary folds the per-item totals of a listing.
type Summary struct {
	Files     int
	Dirs      int
	Entries   int
	Recursive int
	Bytes     int64
}

// Listing is the content of the working directory.
type Listing struct {
	Dir     string
	Items   []Item
	Summary Summary
}

// List enumerates the working directory and annotates each child with its
// aggregate size.
func (e *Engine) List(ctx context.Context) (*Listing, error) {
	dir := e.store.Getwd()
	entries, err := e.store.ReadDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	l := &Listing{Dir: dir, Items: make([]Item, 0, len(entries))}
	for _, entry := range entries {
		total, err := e.AggregateSize(ctx, entry)
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, Item{Entry: entry, Total: total})

		if entry.IsDir {
			l.Summary.Dirs++
		} else {
			l.Summary.Files++
		}
		l.Summary.Entries++
		l.Summary.Recursive += total.Count
		l.Summary.Bytes += total.Bytes
	}
	return l, nil
}
