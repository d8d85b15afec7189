// Validates table files in the data directory as they change.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/localdb/internal/jsondb"
	"golang.org/x/time/rate"
)

// watchDir blocks until ctx is canceled, validating every table file written
// in the data directory. Checks of one file are rate limited while it keeps
// changing.
func (a *app) watchDir(ctx context.Context, _ []string) error {
	dir := a.store.DB.Dir()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return err
	}
	a.log.InfoContext(ctx, "Watching", "dir", dir)

	limit := rate.Inf
	if a.watch.ChecksPerSecond > 0 {
		limit = rate.Limit(a.watch.ChecksPerSecond)
	}
	limiters := map[string]*rate.Limiter{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			l := limiters[event.Name]
			if l == nil {
				l = rate.NewLimiter(limit, max(a.watch.Burst, 1))
				limiters[event.Name] = l
			}
			if !l.Allow() {
				a.log.DebugContext(ctx, "Skipping check", "path", event.Name)
				continue
			}
			n, err := validateTableFile(event.Name)
			if err != nil {
				a.log.WarnContext(ctx, "Invalid table file", "path", event.Name, "err", err)
				continue
			}
			a.log.InfoContext(ctx, "Table file changed", "path", event.Name, "entities", n)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.log.WarnContext(ctx, "Error watching data directory", "err", err)
		}
	}
}

// validateTableFile checks that path holds a JSON array of objects ending
// with ']' so the next append keeps it valid. It returns the number of
// entities.
func validateTableFile(path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the watched data directory
	if err != nil {
		return 0, err
	}
	if trimmed := bytes.TrimRight(data, " \t\r\n"); len(trimmed) != len(data) {
		return 0, errors.New("trailing whitespace after ']' breaks appends")
	}
	records, err := jsondb.Decode(data)
	if err != nil {
		return 0, err
	}
	if len(data) != 0 && data[len(data)-1] != ']' {
		return 0, fmt.Errorf("file ends with %q, want ']'", data[len(data)-1])
	}
	return len(records), nil
}
