package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tasksync/internal/logger"
	"tasksync/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is fed by the documents_notify trigger with the collection
// name of every changed row.
const notifyChannel = "docstore_changes"

// Postgres is a Store keeping documents as JSONB rows of a single documents
// table. Subscriptions LISTEN on a dedicated connection and re-run the query
// whenever their collection changes.
type Postgres struct {
	db           *pgxpool.Pool
	newID        func() string
	pollInterval time.Duration
	log          *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, pollInterval time.Duration) *Postgres {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Postgres{
		db:           db,
		newID:        newIDGenerator(),
		pollInterval: pollInterval,
		log:          logger.Component("docstore.postgres"),
	}
}

// EnsureSchema creates the documents table and its change trigger.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	return migrations.Apply(ctx, p.db)
}

func (p *Postgres) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	find := func(ctx context.Context) ([]Document, error) {
		return p.find(ctx, q)
	}

	go func() {
		defer cancel()

		pooled, err := p.db.Acquire(subCtx)
		if err != nil {
			if subCtx.Err() != nil {
				return
			}
			p.log.Warn("listen connection unavailable, polling", "query", q.String(), "error", err)
			poll(subCtx, p.log, p.pollInterval, q, find, fn)
			return
		}
		// The connection keeps LISTEN state, so it never goes back to the pool.
		conn := pooled.Hijack()
		defer conn.Close(context.Background())

		if _, err := conn.Exec(subCtx, "LISTEN "+notifyChannel); err != nil {
			if subCtx.Err() != nil {
				return
			}
			p.log.Warn("listen failed, polling", "query", q.String(), "error", err)
			poll(subCtx, p.log, p.pollInterval, q, find, fn)
			return
		}

		if !deliver(subCtx, p.log, q, find, fn) {
			return
		}
		for {
			n, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				p.log.Warn("notification wait failed, polling", "query", q.String(), "error", err)
				poll(subCtx, p.log, p.pollInterval, q, find, fn)
				return
			}
			if n.Payload != q.Collection {
				continue
			}
			if !deliver(subCtx, p.log, q, find, fn) {
				return
			}
		}
	}()

	return Unsubscribe(cancel), nil
}

func (p *Postgres) find(ctx context.Context, q Query) ([]Document, error) {
	rows, err := p.db.Query(ctx, selectSQL(q), q.Collection, q.Field, q.Equals, q.OrderBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Data); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func selectSQL(q Query) string {
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	return `SELECT id, data FROM documents
WHERE collection = $1 AND data->>$2 = $3
ORDER BY data->>$4 ` + dir + `, seq ` + dir
}

func (p *Postgres) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	set, _ := splitFields(data)
	id := p.newID()
	_, err := p.db.Exec(ctx, `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`, collection, id, set)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id, nil
}

func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	set, unset := splitFields(fields)
	if unset == nil {
		unset = []string{}
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE documents SET data = (data || $3::jsonb) - $4::text[] WHERE collection = $1 AND id = $2`,
		collection, id, set, unset)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close(context.Context) error {
	p.db.Close()
	return nil
}
