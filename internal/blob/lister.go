package blob

import (
	"context"
	"fmt"
)

type listFrame struct {
	folder  string
	entries []Entry
	next    int
}

// ListRecursive returns the paths of all objects below folder in bucket.
//
// Folder markers are followed and never returned. The result has the same
// order as a depth first recursion would produce: the content of a folder
// replaces its marker. A failing listing at any depth aborts the whole crawl,
// a partial inventory is never returned.
func ListRecursive(ctx context.Context, lister Lister, bucket, folder string) ([]string, error) {
	list := func(folder string) ([]Entry, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := lister.List(ctx, bucket, folder)
		if err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, folder, err)
		}
		return entries, nil
	}

	entries, err := list(folder)
	if err != nil {
		return nil, err
	}

	paths := []string{}
	stack := []*listFrame{{folder: folder, entries: entries}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.entries) {
			stack = stack[:len(stack)-1]
			continue
		}
		entry := top.entries[top.next]
		top.next++

		entryPath := JoinPath(top.folder, entry.Name)
		if !entry.IsFolder() {
			paths = append(paths, entryPath)
			continue
		}

		nested, err := list(entryPath)
		if err != nil {
			return nil, err
		}
		stack = append(stack, &listFrame{folder: entryPath, entries: nested})
	}
	return paths, nil
}
