package docstore

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tasksync/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestSplitFields(t *testing.T) {
	set, unset := splitFields(map[string]any{"title": "x", "dueDate": DeleteField, "category": DeleteField})
	assert.Equal(t, map[string]any{"title": "x"}, set)
	assert.Equal(t, []string{"category", "dueDate"}, unset)
}

func TestMongoUpdate(t *testing.T) {
	assert.Equal(t, bson.M{
		"$set":   bson.M{"completed": true},
		"$unset": bson.M{"dueDate": ""},
	}, mongoUpdate(map[string]any{"completed": true, "dueDate": DeleteField}))

	assert.Equal(t, bson.M{"$set": bson.M{"title": "x"}}, mongoUpdate(map[string]any{"title": "x"}))
	assert.Empty(t, mongoUpdate(map[string]any{}))
}

func TestFromBSON(t *testing.T) {
	oid := primitive.NewObjectID()
	d := fromBSON(bson.M{"_id": oid, "title": "x"})
	assert.Equal(t, oid.Hex(), d.ID)
	assert.Equal(t, map[string]any{"title": "x"}, d.Data)

	d = fromBSON(bson.M{"_id": "abc", "title": "y"})
	assert.Equal(t, "abc", d.ID)
}

func TestSelectSQL(t *testing.T) {
	desc := selectSQL(Query{Collection: "tasks", Field: "userId", Equals: "u", OrderBy: "createdAt", Descending: true})
	assert.True(t, strings.HasSuffix(desc, "ORDER BY data->>$4 DESC, seq DESC"), desc)
	asc := selectSQL(Query{Collection: "tasks", Field: "userId", Equals: "u", OrderBy: "createdAt"})
	assert.True(t, strings.HasSuffix(asc, "ORDER BY data->>$4 ASC, seq ASC"), asc)
	// values are always bound, never interpolated
	assert.NotContains(t, desc, "userId")
}

func TestPollDeliversOnlyChanges(t *testing.T) {
	var calls atomic.Int32
	find := func(context.Context) ([]Document, error) {
		n := calls.Add(1)
		if n < 3 {
			return []Document{{ID: "a", Data: map[string]any{"title": "x"}}}, nil
		}
		return []Document{{ID: "a", Data: map[string]any{"title": "y"}}}, nil
	}

	var r recorder
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poll(ctx, logger.Discard(), 5*time.Millisecond, Query{}, find, r.fn)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 5 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, 2, r.count())
	assert.Equal(t, "y", r.last()[0].Data["title"])
}

func TestMongoContract(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	m := NewMongo(client, "tasksync_test", 50*time.Millisecond)
	defer m.Close(context.Background())
	runContract(t, m)
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)

	p := NewPostgres(pool, 50*time.Millisecond)
	defer p.Close(context.Background())
	require.NoError(t, p.EnsureSchema(context.Background()))
	runContract(t, p)
}
