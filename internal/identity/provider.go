// Package identity holds the authenticated user of a session as a value that
// can be read and observed.
package identity

import (
	"context"
	"iter"
	"sync"
)

// Source is anything that reports the current identity and its changes.
type Source interface {
	Current() (string, bool)
	Subscribe(ctx context.Context) iter.Seq[string]
}

// Provider holds the current identity of one session, or none. An identity is
// an opaque non-empty string; the empty string means signed out.
//
// Subscribers always see the latest value; if a subscriber is slow,
// intermediate values may be skipped.
type Provider struct {
	mu          sync.RWMutex
	current     string
	subscribers map[int64]chan string
	nextSubID   int64
}

func NewProvider() *Provider {
	return &Provider{subscribers: make(map[int64]chan string)}
}

// Current returns the identity and whether one is signed in.
func (p *Provider) Current() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.current != ""
}

func (p *Provider) SignIn(id string) {
	p.set(id)
}

func (p *Provider) SignOut() {
	p.set("")
}

func (p *Provider) set(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == id {
		return
	}
	p.current = id

	// sends never block, so delivering under the lock keeps every
	// subscriber's view in the order values were set
	for _, ch := range p.subscribers {
		select {
		case ch <- id:
		default:
			// latest wins
			select {
			case <-ch:
			default:
			}
			ch <- id
		}
	}
}

// Subscribe yields the current identity, then every change, until ctx is
// canceled or the loop stops.
func (p *Provider) Subscribe(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		ch := make(chan string, 1)

		p.mu.Lock()
		current := p.current
		id := p.nextSubID
		p.nextSubID++
		p.subscribers[id] = ch
		p.mu.Unlock()

		defer func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		}()

		if !yield(current) {
			return
		}
		last := current
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-ch:
				if v == last {
					continue
				}
				last = v
				if !yield(v) {
					return
				}
			}
		}
	}
}
