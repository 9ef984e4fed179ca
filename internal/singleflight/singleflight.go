package singleflight

import (
	"context"
	"fmt"
	"sync"
)

// Group manages a set of in-flight calls to prevent duplicate work.
//
// Unlike golang.org/x/sync/singleflight, every call runs in a goroutine owned
// by the group with its own context. Callers wait on their own context and may
// leave early; the call's context is cancelled once the last waiter has left,
// unless the call was started detached by TryGo.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// Func is the work shared between callers of one key.
type Func func(ctx context.Context) (interface{}, error)

// call represents an active call.
type call struct {
	key     string
	done    chan struct{}
	val     interface{}
	err     error
	waiters int
	dups    int

	// detached calls survive having no waiters.
	detached bool
	cancel   context.CancelFunc
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes and returns the results of fn, making sure that only one
// execution is in-flight for a given key at a time. A duplicate caller joins
// the running call and receives the same results; shared reports whether the
// result was delivered to more than one caller.
//
// ctx bounds only the caller's wait. The first caller's context values are
// inherited by fn, but not its cancellation: fn is cancelled when every
// waiter has given up. A caller that gives up receives ctx.Err().
func (g *Group) Do(ctx context.Context, key string, fn Func) (v interface{}, err error, shared bool) {
	if err := ctx.Err(); err != nil {
		return nil, err, false
	}

	g.mu.Lock()
	c, ok := g.m[key]
	if ok {
		c.waiters++
		c.dups++
	} else {
		c = g.start(ctx, key, fn, false)
		c.waiters = 1
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		g.mu.Lock()
		shared = c.dups > 0
		g.mu.Unlock()
		return c.val, c.err, shared
	case <-ctx.Done():
		g.leave(c)
		return nil, ctx.Err(), ok
	}
}

// TryGo starts fn in the background only if no call with the same key is in
// progress, and reports whether it did. The call is detached: it keeps
// running with no waiters. Later Do callers for the key join it.
func (g *Group) TryGo(ctx context.Context, key string, fn Func) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.m[key]; ok {
		return false
	}
	g.start(ctx, key, fn, true)
	return true
}

// InFlight reports whether a call for key is in progress.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	_, ok := g.m[key]
	g.mu.Unlock()
	return ok
}

// Len returns the number of in-flight calls.
func (g *Group) Len() int {
	g.mu.Lock()
	n := len(g.m)
	g.mu.Unlock()
	return n
}

// ForgetKey removes the key from the group's map, so the next Do for key
// starts a new call even if the previous one is still running.
func (g *Group) ForgetKey(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

// start registers and launches a call. g.mu must be held.
func (g *Group) start(parent context.Context, key string, fn Func, detached bool) *call {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	c := &call{
		key:      key,
		done:     make(chan struct{}),
		detached: detached,
		cancel:   cancel,
	}
	g.m[key] = c

	go g.run(ctx, c, fn)
	return c
}

func (g *Group) run(ctx context.Context, c *call, fn Func) {
	defer c.cancel()
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("%w: %v", ErrPanicked, r)
			g.finish(c)
		}
	}()

	c.val, c.err = fn(ctx)
	g.finish(c)
}

// finish removes the call from the map, whatever its outcome, and releases
// the waiters.
func (g *Group) finish(c *call) {
	g.mu.Lock()
	if g.m[c.key] == c {
		delete(g.m, c.key)
	}
	g.mu.Unlock()
	close(c.done)
}

// leave drops one waiter. An attached call with no waiters left is cancelled
// and unregistered so the next caller starts afresh.
func (g *Group) leave(c *call) {
	g.mu.Lock()
	c.waiters--
	abandon := c.waiters <= 0 && !c.detached
	if abandon && g.m[c.key] == c {
		delete(g.m, c.key)
	}
	g.mu.Unlock()

	if abandon {
		c.cancel()
	}
}
