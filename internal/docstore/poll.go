package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

type findFunc func(ctx context.Context) ([]Document, error)

// deliver runs find and hands the result to fn. It returns false once ctx is
// done.
func deliver(ctx context.Context, log *slog.Logger, q Query, find findFunc, fn SnapshotFunc) bool {
	docs, err := find(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		log.Warn("snapshot query failed", "query", q.String(), "error", err)
		return true
	}
	fn(docs)
	return true
}

// poll re-runs find every interval and delivers the result whenever it
// differs from the previous one.
func poll(ctx context.Context, log *slog.Logger, interval time.Duration, q Query, find findFunc, fn SnapshotFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	first := true
	for {
		docs, err := find(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("snapshot query failed", "query", q.String(), "error", err)
		} else if fp := fingerprint(docs); first || fp != last {
			first = false
			last = fp
			fn(docs)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fingerprint(docs []Document) string {
	type entry struct {
		ID   string         `json:"id"`
		Data map[string]any `json:"data"`
	}
	entries := make([]entry, len(docs))
	for i, d := range docs {
		entries[i] = entry{ID: d.ID, Data: d.Data}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Sprint(entries)
	}
	return string(b)
}
