package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ctx context.Context, p *Provider) (<-chan string, *sync.WaitGroup) {
	out := make(chan string, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for id := range p.Subscribe(ctx) {
			out <- id
		}
	}()
	return out, &wg
}

func next(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no value")
		return ""
	}
}

func TestProviderCurrent(t *testing.T) {
	p := NewProvider()
	id, ok := p.Current()
	assert.False(t, ok)
	assert.Empty(t, id)

	p.SignIn("u1")
	id, ok = p.Current()
	assert.True(t, ok)
	assert.Equal(t, "u1", id)

	p.SignOut()
	_, ok = p.Current()
	assert.False(t, ok)
}

func TestProviderSubscribeYieldsCurrentThenChanges(t *testing.T) {
	p := NewProvider()
	p.SignIn("u1")

	ctx, cancel := context.WithCancel(context.Background())
	ch, wg := collect(ctx, p)
	assert.Equal(t, "u1", next(t, ch))

	p.SignIn("u2")
	assert.Equal(t, "u2", next(t, ch))
	p.SignOut()
	assert.Equal(t, "", next(t, ch))

	cancel()
	wg.Wait()
}

func TestProviderSkipsRepeats(t *testing.T) {
	p := NewProvider()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := collect(ctx, p)
	assert.Equal(t, "", next(t, ch))

	p.SignIn("u1")
	p.SignIn("u1")
	p.SignIn("u2")
	assert.Equal(t, "u1", next(t, ch))
	assert.Equal(t, "u2", next(t, ch))
}

func TestProviderSlowSubscriberSeesLatest(t *testing.T) {
	p := NewProvider()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seq := p.Subscribe(ctx)
	var got []string
	done := make(chan struct{})
	release := make(chan struct{})
	go func() {
		defer close(done)
		for id := range seq {
			got = append(got, id)
			if len(got) == 1 {
				<-release
			}
			if id == "u9" {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return len(p.subscribers) == 1
	}, time.Second, time.Millisecond)
	for _, id := range []string{"u1", "u2", "u3", "u9"} {
		p.SignIn(id)
	}
	close(release)
	<-done

	assert.Equal(t, []string{"", "u9"}, got)
}

func TestProviderUnsubscribesOnBreak(t *testing.T) {
	p := NewProvider()
	p.SignIn("u1")
	for range p.Subscribe(context.Background()) {
		break
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	assert.Empty(t, p.subscribers)
}
